// internal/registry/db.go
package registry

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/signalnine/fleetwatch/internal/protocol"
	_ "modernc.org/sqlite"
)

// Store is the read side of the host catalog
type Store interface {
	Count(ctx context.Context, query string) (int, error)
	List(ctx context.Context, query string, limit, offset int) ([]protocol.HostRecord, error)
	Get(ctx context.Context, id string) (*protocol.HostRecord, error)
}

// DB wraps the SQLite host catalog. One handle is opened per process and shared.
type DB struct {
	db *sql.DB
}

// NewDB opens or creates the registry database
func NewDB(path string, maxOpenConns int) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS server_info (
		id TEXT PRIMARY KEY,
		ip TEXT NOT NULL,
		hostname TEXT NOT NULL,
		access_port INTEGER NOT NULL,
		cpu_percent REAL NOT NULL DEFAULT 0,
		cpu_count INTEGER NOT NULL DEFAULT 0,
		memory_percent REAL NOT NULL DEFAULT 0,
		memory_total REAL NOT NULL DEFAULT 0,
		disk_usage TEXT NOT NULL DEFAULT '',
		updated_on INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_server_info_hostname ON server_info(hostname);
	CREATE INDEX IF NOT EXISTS idx_server_info_ip ON server_info(ip);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the handle is usable
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

const matchClause = `WHERE LOWER(s.ip) LIKE ? ESCAPE '\' OR LOWER(s.hostname) LIKE ? ESCAPE '\'`

// Count returns how many hosts match query by IP or hostname
func (d *DB) Count(ctx context.Context, query string) (int, error) {
	pattern := likePattern(query)

	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server_info s `+matchClause,
		pattern, pattern).Scan(&n)
	return n, err
}

// List returns matching hosts ordered by hostname
func (d *DB) List(ctx context.Context, query string, limit, offset int) ([]protocol.HostRecord, error) {
	pattern := likePattern(query)

	rows, err := d.db.QueryContext(ctx, `
		SELECT s.id, s.ip, s.hostname, s.access_port, s.cpu_percent, s.cpu_count,
		       s.memory_percent, s.memory_total, s.disk_usage, s.updated_on
		FROM server_info s
		`+matchClause+`
		ORDER BY s.hostname ASC
		LIMIT ? OFFSET ?
	`, pattern, pattern, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanHosts(rows)
}

// Get returns one host, or nil if there is no such id
func (d *DB) Get(ctx context.Context, id string) (*protocol.HostRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT s.id, s.ip, s.hostname, s.access_port, s.cpu_percent, s.cpu_count,
		       s.memory_percent, s.memory_total, s.disk_usage, s.updated_on
		FROM server_info s
		WHERE s.id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hosts, err := scanHosts(rows)
	if err != nil || len(hosts) == 0 {
		return nil, err
	}
	return &hosts[0], nil
}

// Upsert writes a host row. Only the collector side (hosts import) uses it.
func (d *DB) Upsert(ctx context.Context, h *protocol.HostRecord) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO server_info (id, ip, hostname, access_port, cpu_percent, cpu_count,
		                         memory_percent, memory_total, disk_usage, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ip = excluded.ip,
			hostname = excluded.hostname,
			access_port = excluded.access_port,
			cpu_percent = excluded.cpu_percent,
			cpu_count = excluded.cpu_count,
			memory_percent = excluded.memory_percent,
			memory_total = excluded.memory_total,
			disk_usage = excluded.disk_usage,
			updated_on = excluded.updated_on
	`, h.ID, h.IP, h.Hostname, h.AccessPort, h.CPUPercent, h.CPUCount,
		h.MemoryPercent, h.MemoryTotal, h.DiskUsage, h.UpdatedOn)

	return err
}

// likePattern builds a case-insensitive substring pattern, treating % and _ in the
// user query literally
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(query)) + "%"
}

func scanHosts(rows *sql.Rows) ([]protocol.HostRecord, error) {
	hosts := []protocol.HostRecord{}
	for rows.Next() {
		var h protocol.HostRecord
		err := rows.Scan(&h.ID, &h.IP, &h.Hostname, &h.AccessPort, &h.CPUPercent, &h.CPUCount,
			&h.MemoryPercent, &h.MemoryTotal, &h.DiskUsage, &h.UpdatedOn)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}
