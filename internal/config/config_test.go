// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadServerConfig(t *testing.T) {
	configPath := writeConfig(t, "server.yaml", `
listen_addr: ":8443"
db_path: /var/lib/fleetwatch/registry.db
db_max_conns: 8
tls_cert: /etc/fleetwatch/tls/cert.pem
tls_key: /etc/fleetwatch/tls/key.pem
proxy_timeout: 3s
poll_interval: 10s
logging:
  level: debug
  file: /var/log/fleetwatch/server.log
`)

	cfg, err := LoadServerConfig(configPath)
	if err != nil {
		t.Fatalf("LoadServerConfig failed: %v", err)
	}

	if cfg.ListenAddr != ":8443" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8443")
	}
	if cfg.DBMaxConns != 8 {
		t.Errorf("DBMaxConns = %d, want 8", cfg.DBMaxConns)
	}
	if cfg.ProxyTimeout != 3*time.Second {
		t.Errorf("ProxyTimeout = %v, want 3s", cfg.ProxyTimeout)
	}
	if cfg.PollInterval.String() != "10s" {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if !cfg.TLSEnabled() {
		t.Error("TLSEnabled = false, want true")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.File != "/var/log/fleetwatch/server.log" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	configPath := writeConfig(t, "server.yaml", `db_path: registry.db`)

	cfg, err := LoadServerConfig(configPath)
	if err != nil {
		t.Fatalf("LoadServerConfig failed: %v", err)
	}

	if cfg.ListenAddr != ":3000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":3000")
	}
	if cfg.ProxyTimeout != 10*time.Second {
		t.Errorf("ProxyTimeout = %v, want 10s", cfg.ProxyTimeout)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.TLSEnabled() {
		t.Error("TLSEnabled = true, want false")
	}
}

func TestLoadServerConfigEnvOverride(t *testing.T) {
	configPath := writeConfig(t, "server.yaml", `
listen_addr: ":3000"
db_path: registry.db
`)

	t.Setenv("FLEETWATCH_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("FLEETWATCH_DB_PATH", "/tmp/other.db")
	t.Setenv("FLEETWATCH_LOG_LEVEL", "warn")

	cfg, err := LoadServerConfig(configPath)
	if err != nil {
		t.Fatalf("LoadServerConfig failed: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, "127.0.0.1:9000")
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/other.db")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestLoadServerConfigInvalid(t *testing.T) {
	configPath := writeConfig(t, "server.yaml", `
tls_cert: /etc/fleetwatch/tls/cert.pem
proxy_timeout: 0s
`)

	_, err := LoadServerConfig(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"tls_cert and tls_key", "proxy_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	if _, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadAgentConfig(t *testing.T) {
	configPath := writeConfig(t, "agent.yaml", `
listen_addr: ":9100"
top_processes: 25
`)

	t.Setenv("FLEETWATCH_AGENT_ADDR", "")

	cfg, err := LoadAgentConfig(configPath)
	if err != nil {
		t.Fatalf("LoadAgentConfig failed: %v", err)
	}

	if cfg.ListenAddr != ":9100" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9100")
	}
	if cfg.TopProcesses != 25 {
		t.Errorf("TopProcesses = %d, want 25", cfg.TopProcesses)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadAgentConfigEnvOverride(t *testing.T) {
	t.Setenv("FLEETWATCH_AGENT_ADDR", ":8123")

	cfg, err := LoadAgentConfig("")
	if err != nil {
		t.Fatalf("LoadAgentConfig failed: %v", err)
	}

	if cfg.ListenAddr != ":8123" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8123")
	}
}
