package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/enum"
	"github.com/volaticloud/fleetwatch/internal/signer"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

func newTestSigner(t *testing.T) *signer.Signer {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyBytes := priv.D.Bytes()
	padded := make([]byte, 32)
	copy(padded[32-len(keyBytes):], keyBytes)
	s, err := signer.Load(padded)
	require.NoError(t, err)
	return s
}

type fakeLookup struct {
	owners map[wire.MachineID]wire.ClientID
}

func (f fakeLookup) OwnerOf(ctx context.Context, machineID wire.MachineID) (wire.ClientID, bool, error) {
	owner, ok := f.owners[machineID]
	return owner, ok, nil
}

type fakeOrgs struct {
	org string
}

func (f fakeOrgs) OrganizationOf(ctx context.Context, clientID wire.ClientID) (string, error) {
	return f.org, nil
}

type fakeInventory struct {
	upserted []wire.NodeInventory
	renamed  []wire.NameChange
	metrics  []wire.MetricsBatch
}

func (f *fakeInventory) UpsertNodeInventory(ctx context.Context, machineID wire.MachineID, p wire.NodeInventory, at time.Time) error {
	f.upserted = append(f.upserted, p)
	return nil
}

func (f *fakeInventory) RenameNodeInventory(ctx context.Context, machineID wire.MachineID, p wire.NameChange) error {
	f.renamed = append(f.renamed, p)
	return nil
}

func (f *fakeInventory) ReplaceMetrics(ctx context.Context, nodeID wire.NodeID, batch wire.MetricsBatch, at time.Time) error {
	f.metrics = append(f.metrics, batch)
	return nil
}

type fakeHeartbeatTracker struct {
	kind           enum.HeartbeatKind
	subjectID      string
	organizationID string
}

func (f *fakeHeartbeatTracker) Ingest(ctx context.Context, kind enum.HeartbeatKind, subjectID, organizationID string, at time.Time) error {
	f.kind, f.subjectID, f.organizationID = kind, subjectID, organizationID
	return nil
}

func signedPayload(t *testing.T, sign *signer.Signer, machineID wire.MachineID, p wire.Payload) wire.SignedPayload {
	t.Helper()
	sig, err := sign.Sign(p)
	require.NoError(t, err)
	return wire.SignedPayload{MachineID: machineID, Signature: sig, Inner: p}
}

func TestRouterRoutesNodeInventory(t *testing.T) {
	sign := newTestSigner(t)
	machineID := wire.NewMachineID()
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: sign.Address()}}
	inv := &fakeInventory{}
	r := New(lookup, fakeOrgs{org: "org-1"}, inv, &fakeHeartbeatTracker{})

	p := wire.NodeInventory{AssignedName: "node-1", NodeKind: string(enum.NodeKindEigenDA)}
	err := r.Handle(context.Background(), signedPayload(t, sign, machineID, p))
	require.NoError(t, err)
	require.Len(t, inv.upserted, 1)
	require.Equal(t, p, inv.upserted[0])
}

func TestRouterRoutesMetricsBatch(t *testing.T) {
	sign := newTestSigner(t)
	machineID := wire.NewMachineID()
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: sign.Address()}}
	inv := &fakeInventory{}
	r := New(lookup, fakeOrgs{org: "org-1"}, inv, &fakeHeartbeatTracker{})

	p := wire.MetricsBatch{AssignedName: "node-1", Metrics: []wire.MetricValue{{Name: "up", Value: 1}}}
	err := r.Handle(context.Background(), signedPayload(t, sign, machineID, p))
	require.NoError(t, err)
	require.Len(t, inv.metrics, 1)
}

func TestRouterRoutesNameChange(t *testing.T) {
	sign := newTestSigner(t)
	machineID := wire.NewMachineID()
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: sign.Address()}}
	inv := &fakeInventory{}
	r := New(lookup, fakeOrgs{org: "org-1"}, inv, &fakeHeartbeatTracker{})

	p := wire.NameChange{OldAssignedName: "node-1-old", NewAssignedName: "node-1-new"}
	err := r.Handle(context.Background(), signedPayload(t, sign, machineID, p))
	require.NoError(t, err)
	require.Len(t, inv.renamed, 1)
}

func TestRouterIgnoresLogLineAndMachineStats(t *testing.T) {
	sign := newTestSigner(t)
	machineID := wire.NewMachineID()
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: sign.Address()}}
	r := New(lookup, fakeOrgs{org: "org-1"}, &fakeInventory{}, &fakeHeartbeatTracker{})

	err := r.Handle(context.Background(), signedPayload(t, sign, machineID, wire.LogLine{AssignedName: "node-1", Line: "hi"}))
	require.NoError(t, err)

	err = r.Handle(context.Background(), signedPayload(t, sign, machineID, wire.MachineStats{Cores: 4}))
	require.NoError(t, err)
}

func TestRouterRoutesClientHeartbeat(t *testing.T) {
	sign := newTestSigner(t)
	machineID := wire.NewMachineID()
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: sign.Address()}}
	hb := &fakeHeartbeatTracker{}
	r := New(lookup, fakeOrgs{org: "org-1"}, &fakeInventory{}, hb)

	p := wire.Heartbeat{SubjectKind: wire.HeartbeatSubjectClient, ClientID: sign.Address()}
	err := r.Handle(context.Background(), signedPayload(t, sign, machineID, p))
	require.NoError(t, err)
	require.Equal(t, enum.HeartbeatKindClient, hb.kind)
	require.Equal(t, sign.Address().String(), hb.subjectID)
	require.Equal(t, "org-1", hb.organizationID)
}

func TestRouterRoutesNodeHeartbeatWithCompositeSubjectID(t *testing.T) {
	sign := newTestSigner(t)
	machineID := wire.NewMachineID()
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: sign.Address()}}
	hb := &fakeHeartbeatTracker{}
	r := New(lookup, fakeOrgs{org: "org-1"}, &fakeInventory{}, hb)

	p := wire.Heartbeat{SubjectKind: wire.HeartbeatSubjectNode, MachineID: machineID, NodeAssignedName: "node-1"}
	err := r.Handle(context.Background(), signedPayload(t, sign, machineID, p))
	require.NoError(t, err)
	require.Equal(t, enum.HeartbeatKindNode, hb.kind)
	require.Equal(t, wire.NodeID{MachineID: machineID, AssignedName: "node-1"}.String(), hb.subjectID)
}

func TestRouterPropagatesValidationErrors(t *testing.T) {
	r := New(fakeLookup{owners: map[wire.MachineID]wire.ClientID{}}, fakeOrgs{}, &fakeInventory{}, &fakeHeartbeatTracker{})
	sp := wire.SignedPayload{MachineID: wire.NewMachineID(), Inner: wire.LogLine{}}
	err := r.Handle(context.Background(), sp)
	require.Error(t, err)
}
