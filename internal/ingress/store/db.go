// Package store is the ingress's persistence layer: machines, clients,
// organizations, node inventory, the latest metrics snapshot per node, and
// per-organization channel settings. It talks to Postgres or SQLite
// directly over database/sql, the same two drivers the teacher's control
// plane registers, rather than through a generated ORM.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open parses a connection string of the form "sqlite://path" or
// "postgresql://..." and opens a *sql.DB against it, mirroring the
// teacher's cmd/server parseDatabase dispatch.
func Open(dbURL string) (*sql.DB, error) {
	driver, dsn, err := parseDatabase(dbURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	return db, nil
}

func parseDatabase(dbURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		driver = "sqlite3"
		dsn = strings.TrimPrefix(dbURL, "sqlite://")

		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", "", fmt.Errorf("store: creating database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_fk=1"
		}
		return driver, dsn, nil

	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		return "postgres", dbURL, nil

	default:
		return "", "", fmt.Errorf("store: unsupported database URL %q (use sqlite:// or postgresql://)", dbURL)
	}
}

// schema is applied by the ingress's migrate subcommand. It is
// hand-written SQL rather than generated, since FleetWatch's persistence
// layer talks to database/sql directly.
const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	channel_bitmask INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS clients (
	client_id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id)
);

CREATE TABLE IF NOT EXISTS machines (
	machine_id TEXT PRIMARY KEY,
	owner_client_id TEXT NOT NULL REFERENCES clients(client_id)
);

CREATE TABLE IF NOT EXISTS node_inventory (
	machine_id TEXT NOT NULL,
	assigned_name TEXT NOT NULL,
	node_kind TEXT NOT NULL,
	manifest_digest TEXT NOT NULL,
	metrics_reachable BOOLEAN NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (machine_id, assigned_name)
);

CREATE TABLE IF NOT EXISTS metrics (
	node_id TEXT PRIMARY KEY,
	metrics_json TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS org_channel_settings (
	organization_id TEXT NOT NULL,
	channel_kind TEXT NOT NULL,
	destination TEXT NOT NULL,
	PRIMARY KEY (organization_id, channel_kind, destination)
);

CREATE TABLE IF NOT EXISTS active_alerts (
	alert_id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	raised_at TIMESTAMP NOT NULL,
	acknowledged_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS history_alerts (
	alert_id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	raised_at TIMESTAMP NOT NULL,
	acknowledged_at TIMESTAMP,
	resolved_at TIMESTAMP NOT NULL
);
`

// Migrate applies the schema. It is idempotent (CREATE TABLE IF NOT
// EXISTS) so it is safe to run on every deploy.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	return nil
}
