// Package alert implements C11 (the active/history alert store) and C12
// (the channel-routing dispatcher). An alert's identity is the
// deterministic AlertID wire.NewAlertID derives from its kind and
// subject, so re-raising the same condition twice is an idempotent
// upsert rather than a duplicate row, and an alert is always in exactly
// one of active_alerts or history_alerts, never both.
package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// Alert is one raised condition, whether currently active or resolved
// into history.
type Alert struct {
	AlertID        uuid.UUID
	OrganizationID string
	Kind           enum.AlertKind
	SubjectID      string
	Severity       enum.AlertSeverity
	RaisedAt       time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
}

// ErrNotActive is returned by Resolve and Acknowledge when the alert_id
// has no active row (already resolved, or never raised).
var ErrNotActive = errors.New("alert: not currently active")

// Store is the active_alerts / history_alerts persistence layer.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// UpsertActive raises a alert, or is a no-op if an alert with the same
// AlertID is already active (idempotent re-raise, spec.md §4.9/§8
// property 2). Returns raised=true only the first time this AlertID
// becomes active.
func (s *Store) UpsertActive(ctx context.Context, a Alert) (raised bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO active_alerts (alert_id, organization_id, kind, subject_id, severity, raised_at, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alert_id) DO NOTHING`,
		a.AlertID.String(), a.OrganizationID, string(a.Kind), a.SubjectID, string(a.Severity), a.RaisedAt, a.AcknowledgedAt,
	)
	if err != nil {
		return false, fmt.Errorf("alert: upserting active alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("alert: confirming active alert upsert: %w", err)
	}
	return n > 0, nil
}

// Resolve moves an active alert into history in a single transaction
// (delete-then-insert), enforcing the mutual-exclusion invariant: an
// alert_id is never present in both tables at once. Returns ErrNotActive
// if the alert isn't currently active (already resolved, or never
// raised) so callers can treat resolution as idempotent.
func (s *Store) Resolve(ctx context.Context, alertID uuid.UUID, resolvedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("alert: beginning resolve transaction: %w", err)
	}
	defer tx.Rollback()

	var a Alert
	var ack sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT organization_id, kind, subject_id, severity, raised_at, acknowledged_at
		FROM active_alerts WHERE alert_id = $1`,
		alertID.String(),
	).Scan(&a.OrganizationID, &a.Kind, &a.SubjectID, &a.Severity, &a.RaisedAt, &ack)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotActive
	}
	if err != nil {
		return fmt.Errorf("alert: loading active alert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM active_alerts WHERE alert_id = $1`, alertID.String()); err != nil {
		return fmt.Errorf("alert: deleting active alert: %w", err)
	}

	var ackPtr *time.Time
	if ack.Valid {
		ackPtr = &ack.Time
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history_alerts (alert_id, organization_id, kind, subject_id, severity, raised_at, acknowledged_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (alert_id) DO NOTHING`,
		alertID.String(), a.OrganizationID, a.Kind, a.SubjectID, a.Severity, a.RaisedAt, ackPtr, resolvedAt,
	); err != nil {
		return fmt.Errorf("alert: inserting history alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("alert: committing resolve: %w", err)
	}
	return nil
}

// Acknowledge records an operator acknowledgement on an active alert. It
// does not resolve the alert; acknowledgement and resolution are
// independent per spec.md §4.10.
func (s *Store) Acknowledge(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE active_alerts SET acknowledged_at = $1 WHERE alert_id = $2`,
		at, alertID.String(),
	)
	if err != nil {
		return fmt.Errorf("alert: acknowledging alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("alert: confirming acknowledgement: %w", err)
	}
	if n == 0 {
		return ErrNotActive
	}
	return nil
}

// ActiveForSubject returns the active alert of the given kind for a
// subject, if any. Used by the heartbeat tracker to find the alert to
// implicitly resolve when a heartbeat arrives.
func (s *Store) ActiveForSubject(ctx context.Context, kind enum.AlertKind, subjectID string) (Alert, bool, error) {
	var a Alert
	var ack sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT alert_id, organization_id, kind, subject_id, severity, raised_at, acknowledged_at
		FROM active_alerts WHERE kind = $1 AND subject_id = $2`,
		string(kind), subjectID,
	).Scan(&a.AlertID, &a.OrganizationID, &a.Kind, &a.SubjectID, &a.Severity, &a.RaisedAt, &ack)
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, fmt.Errorf("alert: looking up active alert for subject: %w", err)
	}
	if ack.Valid {
		a.AcknowledgedAt = &ack.Time
	}
	return a, true, nil
}

// ActiveForOrganization lists every currently active alert for an
// organization.
func (s *Store) ActiveForOrganization(ctx context.Context, organizationID string) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_id, organization_id, kind, subject_id, severity, raised_at, acknowledged_at
		FROM active_alerts WHERE organization_id = $1 ORDER BY raised_at ASC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("alert: listing active alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var ack sql.NullTime
		if err := rows.Scan(&a.AlertID, &a.OrganizationID, &a.Kind, &a.SubjectID, &a.Severity, &a.RaisedAt, &ack); err != nil {
			return nil, fmt.Errorf("alert: scanning active alert: %w", err)
		}
		if ack.Valid {
			a.AcknowledgedAt = &ack.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
