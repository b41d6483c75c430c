package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Frame is the JSON envelope carried over the agent<->ingress websocket
// connection (spec.md §6): a SignedPayload with its variant tagged
// explicitly, since Payload is an interface and can't be unmarshaled
// without knowing which concrete type to decode into.
type Frame struct {
	Kind      string          `json:"kind"`
	MachineID MachineID       `json:"machine_id"`
	Signature string          `json:"signature"`
	Payload   json.RawMessage `json:"payload"`
}

// EncodeFrame converts a SignedPayload to its wire Frame.
func EncodeFrame(sp SignedPayload) (Frame, error) {
	payload, err := json.Marshal(sp.Inner)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encoding payload: %w", err)
	}
	return Frame{
		Kind:      sp.Inner.Kind(),
		MachineID: sp.MachineID,
		Signature: hexEncodeSig(sp.Signature),
		Payload:   payload,
	}, nil
}

// DecodeFrame converts a wire Frame back to a SignedPayload, dispatching
// on Kind to the concrete payload type.
func DecodeFrame(f Frame) (SignedPayload, error) {
	sig, err := hexDecodeSig(f.Signature)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("wire: decoding signature: %w", err)
	}

	inner, err := decodePayload(f.Kind, f.Payload)
	if err != nil {
		return SignedPayload{}, err
	}

	return SignedPayload{MachineID: f.MachineID, Signature: sig, Inner: inner}, nil
}

func decodePayload(kind string, raw json.RawMessage) (Payload, error) {
	var err error
	switch kind {
	case "node_inventory":
		var p NodeInventory
		err = json.Unmarshal(raw, &p)
		return p, err
	case "metrics_batch":
		var p MetricsBatch
		err = json.Unmarshal(raw, &p)
		return p, err
	case "log_line":
		var p LogLine
		err = json.Unmarshal(raw, &p)
		return p, err
	case "machine_stats":
		var p MachineStats
		err = json.Unmarshal(raw, &p)
		return p, err
	case "name_change":
		var p NameChange
		err = json.Unmarshal(raw, &p)
		return p, err
	case "heartbeat":
		var p Heartbeat
		err = json.Unmarshal(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("wire: unknown payload kind %q", kind)
	}
}

func hexEncodeSig(sig [65]byte) string {
	return "0x" + hex.EncodeToString(sig[:])
}

func hexDecodeSig(s string) ([65]byte, error) {
	var sig [65]byte
	raw, err := hex.DecodeString(trimHex(s))
	if err != nil {
		return sig, fmt.Errorf("wire: invalid signature hex: %w", err)
	}
	if len(raw) != len(sig) {
		return sig, fmt.Errorf("wire: signature must decode to %d bytes, got %d", len(sig), len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}
