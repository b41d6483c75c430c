package store

import (
	"context"
	"fmt"
	"time"

	"github.com/volaticloud/fleetwatch/internal/wire"
)

// NodeInventoryRow is the ingress-side shadow of an agent's
// ConfiguredAvs: everything the fleet UI and alert evaluators need to
// know about one tracked container.
type NodeInventoryRow struct {
	MachineID        wire.MachineID
	AssignedName     string
	NodeKind         string
	ManifestDigest   string
	MetricsReachable bool
	UpdatedAt        time.Time
}

// UpsertNodeInventory records a node_inventory payload, replacing any
// prior row for the same (machine_id, assigned_name).
func (s *Store) UpsertNodeInventory(ctx context.Context, machineID wire.MachineID, p wire.NodeInventory, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_inventory (machine_id, assigned_name, node_kind, manifest_digest, metrics_reachable, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (machine_id, assigned_name) DO UPDATE SET
			node_kind = excluded.node_kind,
			manifest_digest = excluded.manifest_digest,
			metrics_reachable = excluded.metrics_reachable,
			updated_at = excluded.updated_at`,
		machineID.String(), p.AssignedName, p.NodeKind, p.ManifestDigest, p.MetricsReachable, at,
	)
	if err != nil {
		return fmt.Errorf("store: upserting node inventory: %w", err)
	}
	return nil
}

// RenameNodeInventory applies a NameChange payload to the shadow row.
func (s *Store) RenameNodeInventory(ctx context.Context, machineID wire.MachineID, p wire.NameChange) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE node_inventory SET assigned_name = $1 WHERE machine_id = $2 AND assigned_name = $3`,
		p.NewAssignedName, machineID.String(), p.OldAssignedName,
	)
	if err != nil {
		return fmt.Errorf("store: renaming node inventory: %w", err)
	}
	return nil
}

// NodesForMachine lists every tracked node belonging to a machine.
func (s *Store) NodesForMachine(ctx context.Context, machineID wire.MachineID) ([]NodeInventoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT machine_id, assigned_name, node_kind, manifest_digest, metrics_reachable, updated_at
		FROM node_inventory WHERE machine_id = $1`,
		machineID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing node inventory: %w", err)
	}
	defer rows.Close()

	var out []NodeInventoryRow
	for rows.Next() {
		var r NodeInventoryRow
		var machineHex string
		if err := rows.Scan(&machineHex, &r.AssignedName, &r.NodeKind, &r.ManifestDigest, &r.MetricsReachable, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning node inventory row: %w", err)
		}
		r.MachineID = machineID
		out = append(out, r)
	}
	return out, rows.Err()
}
