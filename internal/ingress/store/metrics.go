package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/volaticloud/fleetwatch/internal/wire"
)

// ReplaceMetrics stores the latest MetricsBatch for a node, replacing
// whatever was there before atomically: a DELETE followed by an INSERT
// in one transaction, per SPEC_FULL.md's metrics replacement rule.
// Only the latest snapshot per node is kept; history is not retained
// here (it lives in whatever time-series scraping target the batch was
// itself drawn from).
func (s *Store) ReplaceMetrics(ctx context.Context, nodeID wire.NodeID, batch wire.MetricsBatch, at time.Time) error {
	encoded, err := json.Marshal(batch.Metrics)
	if err != nil {
		return fmt.Errorf("store: encoding metrics batch: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning metrics transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE node_id = $1`, nodeID.String()); err != nil {
		return fmt.Errorf("store: clearing prior metrics: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metrics (node_id, metrics_json, updated_at) VALUES ($1, $2, $3)`,
		nodeID.String(), string(encoded), at,
	); err != nil {
		return fmt.Errorf("store: inserting metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing metrics replacement: %w", err)
	}
	return nil
}

// LatestMetrics returns the most recently replaced MetricsBatch for a
// node, or ok=false if none has ever arrived.
func (s *Store) LatestMetrics(ctx context.Context, nodeID wire.NodeID) (batch wire.MetricsBatch, ok bool, err error) {
	var encoded string
	err = s.db.QueryRowContext(ctx,
		`SELECT metrics_json FROM metrics WHERE node_id = $1`,
		nodeID.String(),
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.MetricsBatch{}, false, nil
	}
	if err != nil {
		return wire.MetricsBatch{}, false, fmt.Errorf("store: loading metrics: %w", err)
	}
	var values []wire.MetricValue
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return wire.MetricsBatch{}, false, fmt.Errorf("store: decoding stored metrics: %w", err)
	}
	return wire.MetricsBatch{AssignedName: nodeID.AssignedName, Metrics: values}, true, nil
}
