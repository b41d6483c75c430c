// Package ingress wires the ingress-side collaborators together: it
// implements transport.Handler by running every inbound frame through the
// validator and routing the authenticated payload to the store or
// heartbeat tracker by its wire kind (spec.md §4.8-§4.9).
package ingress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/enum"
	"github.com/volaticloud/fleetwatch/internal/ingress/validator"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// OrganizationResolver resolves the organization a client belongs to.
// internal/ingress/store.Store satisfies this.
type OrganizationResolver interface {
	OrganizationOf(ctx context.Context, clientID wire.ClientID) (string, error)
}

// InventoryStore is the subset of internal/ingress/store.Store the router
// persists node telemetry through.
type InventoryStore interface {
	UpsertNodeInventory(ctx context.Context, machineID wire.MachineID, p wire.NodeInventory, at time.Time) error
	RenameNodeInventory(ctx context.Context, machineID wire.MachineID, p wire.NameChange) error
	ReplaceMetrics(ctx context.Context, nodeID wire.NodeID, batch wire.MetricsBatch, at time.Time) error
}

// HeartbeatTracker is the subset of internal/heartbeat.Tracker the router drives.
type HeartbeatTracker interface {
	Ingest(ctx context.Context, kind enum.HeartbeatKind, subjectID, organizationID string, at time.Time) error
}

// Router implements transport.Handler: every inbound frame is validated
// once, then routed to persistence by payload kind. LogLine and
// MachineStats have no dedicated table in spec.md's persisted-state list
// (§6); they are logged at debug level rather than stored, since nothing
// downstream of this repo consumes a raw log/stats history.
type Router struct {
	lookup    validator.MachineLookup
	orgs      OrganizationResolver
	inventory InventoryStore
	heartbeat HeartbeatTracker
}

// New builds a Router.
func New(lookup validator.MachineLookup, orgs OrganizationResolver, inventory InventoryStore, hb HeartbeatTracker) *Router {
	return &Router{lookup: lookup, orgs: orgs, inventory: inventory, heartbeat: hb}
}

// Handle implements transport.Handler.
func (r *Router) Handle(ctx context.Context, sp wire.SignedPayload) error {
	result, err := validator.Validate(ctx, r.lookup, sp)
	if err != nil {
		return err
	}

	now := time.Now()
	switch p := result.Payload.(type) {
	case wire.NodeInventory:
		return r.inventory.UpsertNodeInventory(ctx, result.MachineID, p, now)
	case wire.NameChange:
		return r.inventory.RenameNodeInventory(ctx, result.MachineID, p)
	case wire.MetricsBatch:
		nodeID := wire.NodeID{MachineID: result.MachineID, AssignedName: p.AssignedName}
		return r.inventory.ReplaceMetrics(ctx, nodeID, p, now)
	case wire.LogLine:
		logger.GetLogger(ctx).Debug("ingress: log line",
			zap.String("assigned_name", p.AssignedName), zap.String("line", p.Line))
		return nil
	case wire.MachineStats:
		logger.GetLogger(ctx).Debug("ingress: machine stats",
			zap.String("machine_id", result.MachineID.String()),
			zap.Float64("cpu_percent", p.CPUPercent),
			zap.Uint64("mem_used", p.MemUsed),
			zap.Uint64("disk_used", p.DiskUsed))
		return nil
	case wire.Heartbeat:
		return r.handleHeartbeat(ctx, result, p, now)
	default:
		return fmt.Errorf("ingress: unhandled payload kind %q", result.Payload.Kind())
	}
}

func (r *Router) handleHeartbeat(ctx context.Context, result validator.Result, p wire.Heartbeat, now time.Time) error {
	organizationID, err := r.orgs.OrganizationOf(ctx, result.ClientID)
	if err != nil {
		return fmt.Errorf("ingress: resolving organization for heartbeat: %w", err)
	}

	var kind enum.HeartbeatKind
	var subjectID string
	switch p.SubjectKind {
	case wire.HeartbeatSubjectClient:
		kind, subjectID = enum.HeartbeatKindClient, result.ClientID.String()
	case wire.HeartbeatSubjectMachine:
		kind, subjectID = enum.HeartbeatKindMachine, result.MachineID.String()
	case wire.HeartbeatSubjectNode:
		kind = enum.HeartbeatKindNode
		subjectID = wire.NodeID{MachineID: result.MachineID, AssignedName: p.NodeAssignedName}.String()
	default:
		return fmt.Errorf("ingress: unknown heartbeat subject kind %q", p.SubjectKind)
	}

	return r.heartbeat.Ingest(ctx, kind, subjectID, organizationID, now)
}
