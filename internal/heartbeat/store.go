// Package heartbeat implements C10: tracking the last time each client,
// machine, and node reported in, implicitly resolving the matching
// staleness alert the moment a heartbeat arrives, and periodically
// scanning for subjects that have gone silent past their threshold.
package heartbeat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// SubjectInfo is one tracked heartbeat subject's last-known state.
type SubjectInfo struct {
	SubjectID      string
	OrganizationID string
	LastSeen       time.Time
}

var tableByKind = map[enum.HeartbeatKind]string{
	enum.HeartbeatKindClient:  "client_heartbeats",
	enum.HeartbeatKindMachine: "machine_heartbeats",
	enum.HeartbeatKindNode:    "node_heartbeats",
}

// Store persists the three heartbeat tables (client_heartbeats,
// machine_heartbeats, node_heartbeats), one Go type parameterized over
// enum.HeartbeatKind rather than three near-identical structs.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle on which this package's Migrate has
// created the three heartbeat tables (subject_id, organization_id,
// last_response_time).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) table(kind enum.HeartbeatKind) (string, error) {
	table, ok := tableByKind[kind]
	if !ok {
		return "", fmt.Errorf("heartbeat: unknown heartbeat kind %q", kind)
	}
	return table, nil
}

// Touch upserts the last-seen time for subjectID under organizationID.
func (s *Store) Touch(ctx context.Context, kind enum.HeartbeatKind, subjectID, organizationID string, at time.Time) error {
	table, err := s.table(kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (subject_id, organization_id, last_response_time) VALUES ($1, $2, $3)
		ON CONFLICT (subject_id) DO UPDATE SET last_response_time = excluded.last_response_time, organization_id = excluded.organization_id`, table),
		subjectID, organizationID, at,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: touching %s: %w", kind, err)
	}
	return nil
}

// ErrSubjectNotTracked is returned when a subject has never reported in.
var ErrSubjectNotTracked = errors.New("heartbeat: subject not tracked")

// LastSeen returns the last-recorded heartbeat time for a subject.
func (s *Store) LastSeen(ctx context.Context, kind enum.HeartbeatKind, subjectID string) (time.Time, error) {
	table, err := s.table(kind)
	if err != nil {
		return time.Time{}, err
	}
	var at time.Time
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT last_response_time FROM %s WHERE subject_id = $1`, table),
		subjectID,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrSubjectNotTracked
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("heartbeat: loading last seen for %s: %w", kind, err)
	}
	return at, nil
}

// ListAll returns every subject ever tracked for kind, regardless of
// staleness; the Scanner applies the threshold comparison itself.
func (s *Store) ListAll(ctx context.Context, kind enum.HeartbeatKind) ([]SubjectInfo, error) {
	table, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT subject_id, organization_id, last_response_time FROM %s`, table),
	)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: listing %s: %w", kind, err)
	}
	defer rows.Close()

	var out []SubjectInfo
	for rows.Next() {
		var info SubjectInfo
		if err := rows.Scan(&info.SubjectID, &info.OrganizationID, &info.LastSeen); err != nil {
			return nil, fmt.Errorf("heartbeat: scanning %s row: %w", kind, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// heartbeatSchema creates the three heartbeat tables with the
// organization_id column the Scanner needs to route alerts. This package
// owns these tables; internal/ingress/store's schema declares none of
// them. Applied by the same migrate step.
const heartbeatSchema = `
CREATE TABLE IF NOT EXISTS client_heartbeats (
	subject_id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	last_response_time TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS machine_heartbeats (
	subject_id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	last_response_time TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS node_heartbeats (
	subject_id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	last_response_time TIMESTAMP NOT NULL
);
`

// Migrate applies the heartbeat tables. Idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(heartbeatSchema); err != nil {
		return fmt.Errorf("heartbeat: applying schema: %w", err)
	}
	return nil
}
