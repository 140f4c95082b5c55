// internal/registry/import.go
package registry

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// seedFile is the layout accepted by Import:
//
//	hosts:
//	  - hostname: web1.example.com
//	    ip: 10.0.0.5
//	    access_port: 8001
type seedFile struct {
	Hosts []seedHost `yaml:"hosts"`
}

type seedHost struct {
	ID            string  `yaml:"id"`
	IP            string  `yaml:"ip"`
	Hostname      string  `yaml:"hostname"`
	AccessPort    int     `yaml:"access_port"`
	CPUPercent    float64 `yaml:"cpu_percent"`
	CPUCount      int     `yaml:"cpu_count"`
	MemoryPercent float64 `yaml:"memory_percent"`
	MemoryTotal   float64 `yaml:"memory_total"`
	DiskUsage     string  `yaml:"disk_usage"`
	UpdatedOn     int64   `yaml:"updated_on"`
}

// Import upserts every host listed in the YAML file at path. Hosts without an
// updated_on are stamped with now; hosts without an id get a new one, so only
// entries with an id are updated in place on re-import. It returns the number of
// hosts written.
func Import(ctx context.Context, db *DB, path string, now time.Time) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read hosts file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse hosts file %s: %w", path, err)
	}

	for i, h := range seed.Hosts {
		if h.Hostname == "" || h.IP == "" {
			return i, fmt.Errorf("host %d: hostname and ip are required", i+1)
		}
		rec := protocol.HostRecord{
			ID:            h.ID,
			IP:            h.IP,
			Hostname:      h.Hostname,
			AccessPort:    h.AccessPort,
			CPUPercent:    h.CPUPercent,
			CPUCount:      h.CPUCount,
			MemoryPercent: h.MemoryPercent,
			MemoryTotal:   h.MemoryTotal,
			DiskUsage:     h.DiskUsage,
			UpdatedOn:     h.UpdatedOn,
		}
		if rec.UpdatedOn == 0 {
			rec.UpdatedOn = now.UnixMilli()
		}
		if err := db.Upsert(ctx, &rec); err != nil {
			return i, fmt.Errorf("host %s: %w", h.Hostname, err)
		}
	}
	return len(seed.Hosts), nil
}
