package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MachineID is a 128-bit identifier generated once per installed agent.
type MachineID [16]byte

func (m MachineID) String() string { return hex.EncodeToString(m[:]) }

// MarshalJSON encodes a MachineID as a hex string for wire frames.
func (m MachineID) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON decodes a MachineID from the hex string MarshalJSON produces.
func (m *MachineID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("wire: invalid machine_id: %w", err)
	}
	if len(raw) != len(m) {
		return fmt.Errorf("wire: machine_id must be %d bytes, got %d", len(m), len(raw))
	}
	copy(m[:], raw)
	return nil
}

// NewMachineID generates a fresh MachineID.
func NewMachineID() MachineID {
	var m MachineID
	copy(m[:], uuid.New())
	return m
}

// ClientID is the 20-byte public-key address derived from an operator's
// identity key (an Ethereum-style address). Stable across every machine
// the operator owns.
type ClientID [20]byte

func (c ClientID) String() string { return "0x" + hex.EncodeToString(c[:]) }

// MarshalJSON encodes a ClientID as its 0x-prefixed hex string.
func (c ClientID) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// UnmarshalJSON decodes a ClientID from the 0x-prefixed hex string
// MarshalJSON produces.
func (c *ClientID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(trimHex(s))
	if err != nil {
		return fmt.Errorf("wire: invalid client_id: %w", err)
	}
	if len(raw) != len(c) {
		return fmt.Errorf("wire: client_id must be %d bytes, got %d", len(c), len(raw))
	}
	copy(c[:], raw)
	return nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// NodeID identifies a single tracked container: a machine plus the
// stable, human-readable name assigned to it at first discovery.
type NodeID struct {
	MachineID    MachineID
	AssignedName string
}

func (n NodeID) String() string {
	return fmt.Sprintf("%s/%s", n.MachineID, n.AssignedName)
}

// alertNamespace is a fixed UUID namespace FleetWatch alert IDs are
// derived under, so that re-raising the same condition for the same
// subject always produces the same AlertID (spec.md §3, §8 property 2, S2).
var alertNamespace = uuid.MustParse("8f14e45f-ceea-467e-bd5b-9b4a5e2c6a10")

// NewAlertID derives a deterministic AlertID from an alert kind, the
// subject it concerns, and an optional discriminator, so repeated raises
// of the same condition upsert the same row instead of duplicating it.
func NewAlertID(kind string, subjectID string, discriminator string) uuid.UUID {
	name := kind + "|" + subjectID
	if discriminator != "" {
		name += "|" + discriminator
	}
	return uuid.NewSHA1(alertNamespace, []byte(name))
}
