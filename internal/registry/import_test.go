package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestImport(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

	path := filepath.Join(t.TempDir(), "hosts.yaml")
	content := `
hosts:
  - id: web1
    hostname: web1.example.com
    ip: 10.0.0.5
    access_port: 8001
    cpu_count: 4
    disk_usage: "41%"
  - hostname: db1.example.com
    ip: 10.0.0.6
    access_port: 8001
    updated_on: 1700000000000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := Import(ctx, db, path, now)
	if err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if n != 2 {
		t.Errorf("Import = %d, want 2", n)
	}

	web, err := db.Get(ctx, "web1")
	if err != nil || web == nil {
		t.Fatalf("Get(web1) = %v, %v", web, err)
	}
	if web.AccessPort != 8001 || web.CPUCount != 4 || web.DiskUsage != "41%" {
		t.Errorf("web1 = %+v", *web)
	}
	if web.UpdatedOn != now.UnixMilli() {
		t.Errorf("UpdatedOn = %d, want stamped %d", web.UpdatedOn, now.UnixMilli())
	}

	hosts, err := db.List(ctx, "db1", 6, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(hosts) != 1 || hosts[0].UpdatedOn != 1700000000000 {
		t.Errorf("db1 = %+v", hosts)
	}

	// Re-import updates in place
	if _, err := Import(ctx, db, path, now); err != nil {
		t.Fatalf("second Import error: %v", err)
	}
	count, _ := db.Count(ctx, "web1")
	if count != 1 {
		t.Errorf("Count(web1) = %d after re-import, want 1", count)
	}
}

func TestImportRejectsIncompleteHost(t *testing.T) {
	db := openTestDB(t)

	path := filepath.Join(t.TempDir(), "hosts.yaml")
	if err := os.WriteFile(path, []byte("hosts:\n  - hostname: lonely.example.com\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Import(context.Background(), db, path, time.Now())
	if err == nil || !strings.Contains(err.Error(), "hostname and ip are required") {
		t.Errorf("Import error = %v, want missing ip", err)
	}
}
