package wire

// SignedPayload wraps a typed payload with the machine identity that sent
// it and a recoverable signature over its canonical encoding
// (spec.md §3, §6).
type SignedPayload struct {
	MachineID MachineID
	Signature [65]byte
	Inner     Payload
}
