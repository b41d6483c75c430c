package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := []Payload{
		NodeInventory{AssignedName: "node-1", NodeKind: "eigenda", ManifestDigest: "sha256:abc", MetricsReachable: true},
		MetricsBatch{AssignedName: "node-1", Metrics: []MetricValue{{Name: "up", Value: 1, Attributes: map[string]string{"a": "1"}}}},
		LogLine{AssignedName: "node-1", Line: "hello"},
		MachineStats{Cores: 4, CPUPercent: 12.3, MemUsed: 100, MemFree: 200},
		NameChange{OldAssignedName: "old", NewAssignedName: "new"},
		Heartbeat{SubjectKind: HeartbeatSubjectMachine, MachineID: NewMachineID()},
	}

	for _, p := range payloads {
		sp := SignedPayload{MachineID: NewMachineID(), Signature: [65]byte{1, 2, 3}, Inner: p}

		frame, err := EncodeFrame(sp)
		require.NoError(t, err)
		require.Equal(t, p.Kind(), frame.Kind)

		decoded, err := DecodeFrame(frame)
		require.NoError(t, err)
		require.Equal(t, sp.MachineID, decoded.MachineID)
		require.Equal(t, sp.Signature, decoded.Signature)
		require.Equal(t, p, decoded.Inner)
	}
}

func TestDecodeFrameRejectsUnknownKind(t *testing.T) {
	_, err := DecodeFrame(Frame{Kind: "not_a_real_kind", Payload: []byte(`{}`)})
	require.Error(t, err)
}

func TestDecodeFrameRejectsMalformedSignature(t *testing.T) {
	_, err := DecodeFrame(Frame{Kind: "log_line", Signature: "not-hex", Payload: []byte(`{}`)})
	require.Error(t, err)
}
