// Package wire defines the canonical data model shared by the agent and
// the ingress: the six SignedPayload variants, their canonical byte
// encoding, and the machine/client identifiers that anchor signatures to
// an owner. The canonical encoder here is the single authority on wire
// hashing (spec.md §4.1, §9) — every variant's Canonical method is
// exercised by a round-trip property test in internal/signer.
package wire

import (
	"encoding/binary"
	"sort"

	"github.com/google/uuid"
)

// Payload is implemented by the six payload variants carried inside a
// SignedPayload envelope. The interface has only exported methods; the
// six variants below are the ones DecodeFrame dispatches on by Kind,
// matching spec.md §9's instruction to dispatch on a tagged variant
// rather than use inheritance.
type Payload interface {
	Canonical() []byte
	Kind() string
}

// NodeInventory reports a newly (or re-)classified AVS container.
type NodeInventory struct {
	AssignedName     string
	NodeKind         string
	ManifestDigest   string
	MetricsReachable bool
}

func (p NodeInventory) Kind() string { return "node_inventory" }

func (p NodeInventory) Canonical() []byte {
	b := newBuilder()
	b.writeString(p.AssignedName)
	b.writeString(p.NodeKind)
	b.writeString(p.ManifestDigest)
	b.writeBool(p.MetricsReachable)
	return b.bytes()
}

// MetricValue is one named sample within a MetricsBatch.
type MetricValue struct {
	Name       string
	Value      float64
	Attributes map[string]string
}

// MetricsBatch is an ordered list of metric samples scraped for one node.
type MetricsBatch struct {
	AssignedName string
	Metrics      []MetricValue
}

func (p MetricsBatch) Kind() string { return "metrics_batch" }

func (p MetricsBatch) Canonical() []byte {
	b := newBuilder()
	b.writeString(p.AssignedName)
	b.writeUint32(uint32(len(p.Metrics)))
	for _, m := range p.Metrics {
		b.writeString(m.Name)
		b.writeScaledFloat(m.Value)
		b.writeSortedMap(m.Attributes)
	}
	return b.bytes()
}

// LogLine is one line emitted by a container's log stream.
type LogLine struct {
	AssignedName string
	Line         string
}

func (p LogLine) Kind() string { return "log_line" }

func (p LogLine) Canonical() []byte {
	b := newBuilder()
	b.writeString(p.AssignedName)
	b.writeString(p.Line)
	return b.bytes()
}

// MachineStats is a periodic host resource-usage sample.
type MachineStats struct {
	Cores      uint32
	CPUPercent float64
	MemUsed    uint64
	MemFree    uint64
	DiskUsed   uint64
	DiskFree   uint64
	UptimeSecs uint64
}

func (p MachineStats) Kind() string { return "machine_stats" }

func (p MachineStats) Canonical() []byte {
	b := newBuilder()
	b.writeUint32(p.Cores)
	b.writeScaledFloat(p.CPUPercent)
	b.writeUint64(p.MemUsed)
	b.writeUint64(p.MemFree)
	b.writeUint64(p.DiskUsed)
	b.writeUint64(p.DiskFree)
	b.writeUint64(p.UptimeSecs)
	return b.bytes()
}

// NameChange reports that an agent re-assigned a container's assigned_name
// (e.g. after a restart coalesced into the same ConfiguredAvs).
type NameChange struct {
	OldAssignedName string
	NewAssignedName string
}

func (p NameChange) Kind() string { return "name_change" }

func (p NameChange) Canonical() []byte {
	b := newBuilder()
	b.writeString(p.OldAssignedName)
	b.writeString(p.NewAssignedName)
	return b.bytes()
}

// HeartbeatSubjectKind distinguishes the three Heartbeat variants.
type HeartbeatSubjectKind string

const (
	HeartbeatSubjectClient  HeartbeatSubjectKind = "client"
	HeartbeatSubjectMachine HeartbeatSubjectKind = "machine"
	HeartbeatSubjectNode    HeartbeatSubjectKind = "node"
)

// Heartbeat is one of ClientBeat, MachineBeat, or NodeBeat (spec.md §3).
// Exactly one of ClientID/MachineID is set; NodeAssignedName is set only
// for NodeBeat (the node's MachineID is the enclosing SignedPayload's
// machine_id).
type Heartbeat struct {
	SubjectKind      HeartbeatSubjectKind
	ClientID         ClientID
	MachineID        MachineID
	NodeAssignedName string
}

func (p Heartbeat) Kind() string { return "heartbeat" }

func (p Heartbeat) Canonical() []byte {
	b := newBuilder()
	b.writeString(string(p.SubjectKind))
	switch p.SubjectKind {
	case HeartbeatSubjectClient:
		b.writeBytes(p.ClientID[:])
	case HeartbeatSubjectMachine:
		b.writeBytes(p.MachineID[:])
	case HeartbeatSubjectNode:
		b.writeBytes(p.MachineID[:])
		b.writeString(p.NodeAssignedName)
	}
	return b.bytes()
}

// builder concatenates ABI-style tokens in field order, exactly as
// spec.md §3 requires: fixed field order, sub-maps sorted by key
// ascending, floats scaled by 1000 and truncated to an integer before
// hashing.
type builder struct {
	buf []byte
}

func newBuilder() *builder { return &builder{} }

func (b *builder) bytes() []byte { return b.buf }

func (b *builder) writeBytes(v []byte) {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(v)))
	b.buf = append(b.buf, lenPrefix[:]...)
	b.buf = append(b.buf, v...)
}

func (b *builder) writeString(v string) { b.writeBytes([]byte(v)) }

func (b *builder) writeBool(v bool) {
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}

func (b *builder) writeUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *builder) writeUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// writeScaledFloat converts f to an integer by multiplying by 1000 and
// truncating, per spec.md §3's canonical-encoding rule, before hashing.
func (b *builder) writeScaledFloat(f float64) {
	scaled := int64(f * 1000)
	b.writeUint64(uint64(scaled))
}

// writeSortedMap encodes a string->string map with keys sorted ascending
// so two structurally-equal payloads built from maps with differing
// insertion order produce the same signature (spec.md §8 property 2).
func (b *builder) writeSortedMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.writeUint32(uint32(len(keys)))
	for _, k := range keys {
		b.writeString(k)
		b.writeString(m[k])
	}
}

// NewAssignedName derives a fresh assigned_name for a newly classified
// container: {container_name}-{uuid} (spec.md §4.7).
func NewAssignedName(containerName string) string {
	return containerName + "-" + uuid.NewString()
}
