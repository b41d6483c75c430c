// Package signer implements C1: canonical-encoding + keccak256 + ECDSA
// recoverable signatures over wire.Payload values, using the machine's
// identity key. The key is loaded once at process startup into an
// immutable, cheaply-cloneable handle (spec.md §9 "global signer state") —
// reconfiguration requires a process restart, which eliminates mid-flight
// key-rotation bugs.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/volaticloud/fleetwatch/internal/wire"
)

// Signer holds a machine's private identity key for the life of the
// process. The zero value is not usable; construct with Load or
// LoadFromFile. Signer is safe for concurrent use — it holds no mutable
// state after construction.
type Signer struct {
	priv *ecdsa.PrivateKey
	addr wire.ClientID
}

// Load builds a Signer from raw ECDSA key bytes (32-byte big-endian scalar).
func Load(keyBytes []byte) (*Signer, error) {
	priv, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid identity key: %w", err)
	}
	return fromPrivateKey(priv), nil
}

// LoadFromFile reads a hex-encoded private key from keyfilePath. This is
// the agent's AGENT_IDENTITY_KEYFILE collaborator (spec.md §6); failure
// here is fatal at agent startup (spec.md §7, "Fatal" error kind).
func LoadFromFile(keyfilePath string) (*Signer, error) {
	raw, err := os.ReadFile(keyfilePath)
	if err != nil {
		return nil, fmt.Errorf("signer: reading identity keyfile: %w", err)
	}
	priv, err := crypto.HexToECDSA(trimHexPrefix(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("signer: parsing identity keyfile: %w", err)
	}
	return fromPrivateKey(priv), nil
}

func fromPrivateKey(priv *ecdsa.PrivateKey) *Signer {
	return &Signer{
		priv: priv,
		addr: wire.ClientID(crypto.PubkeyToAddress(priv.PublicKey)),
	}
}

// Address returns the ClientID (signer address) this Signer signs as.
func (s *Signer) Address() wire.ClientID { return s.addr }

// Sign canonical-encodes p, hashes it with keccak256, and produces a
// 65-byte recoverable ECDSA signature (spec.md §4.1).
func (s *Signer) Sign(p wire.Payload) ([65]byte, error) {
	var sig [65]byte
	hash := crypto.Keccak256(p.Canonical())
	raw, err := crypto.Sign(hash, s.priv)
	if err != nil {
		return sig, fmt.Errorf("signer: sign: %w", err)
	}
	copy(sig[:], raw)
	return sig, nil
}

// Recover canonical-encodes p, hashes it with keccak256, and recovers the
// signer address from sig. This is the symmetric counterpart to Sign, and
// is what the ingress validator (C9) calls on every inbound message.
func Recover(p wire.Payload, sig [65]byte) (wire.ClientID, error) {
	hash := crypto.Keccak256(p.Canonical())
	pub, err := crypto.SigToPub(hash, sig[:])
	if err != nil {
		return wire.ClientID{}, fmt.Errorf("signer: recover: %w", err)
	}
	return wire.ClientID(crypto.PubkeyToAddress(*pub)), nil
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}
