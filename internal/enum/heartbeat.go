package enum

import "time"

// HeartbeatKind is one of the three granularities heartbeats are tracked
// at: operator (client), machine, or node.
type HeartbeatKind string

const (
	HeartbeatKindClient  HeartbeatKind = "client"
	HeartbeatKindMachine HeartbeatKind = "machine"
	HeartbeatKindNode    HeartbeatKind = "node"
)

// DefaultThreshold is the staleness threshold for a heartbeat kind absent
// explicit configuration (spec.md §4.9).
func (k HeartbeatKind) DefaultThreshold() time.Duration {
	switch k {
	case HeartbeatKindClient:
		return 120 * time.Second
	case HeartbeatKindMachine:
		return 120 * time.Second
	case HeartbeatKindNode:
		return 300 * time.Second
	default:
		return 120 * time.Second
	}
}

// AlertKind returns the staleness alert kind this heartbeat kind raises
// when it goes silent past its threshold.
func (k HeartbeatKind) AlertKind() AlertKind {
	switch k {
	case HeartbeatKindClient:
		return AlertKindNoClientHeartbeat
	case HeartbeatKindMachine:
		return AlertKindNoMachineHeartbeat
	case HeartbeatKindNode:
		return AlertKindNoNodeHeartbeat
	default:
		return ""
	}
}
