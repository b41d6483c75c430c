package validator

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

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

func TestValidateSucceeds(t *testing.T) {
	sign := newTestSigner(t)
	machineID := wire.NewMachineID()
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: sign.Address()}}

	payload := wire.LogLine{AssignedName: "node-1", Line: "hi"}
	sig, err := sign.Sign(payload)
	require.NoError(t, err)

	sp := wire.SignedPayload{MachineID: machineID, Signature: sig, Inner: payload}
	result, err := Validate(context.Background(), lookup, sp)
	require.NoError(t, err)
	require.Equal(t, sign.Address(), result.ClientID)
	require.Equal(t, machineID, result.MachineID)
	require.Equal(t, payload, result.Payload)
}

func TestValidateRejectsZeroSignature(t *testing.T) {
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{}}
	sp := wire.SignedPayload{MachineID: wire.NewMachineID(), Inner: wire.LogLine{}}
	_, err := Validate(context.Background(), lookup, sp)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValidateRejectsUnknownMachine(t *testing.T) {
	sign := newTestSigner(t)
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{}}

	payload := wire.LogLine{AssignedName: "node-1", Line: "hi"}
	sig, err := sign.Sign(payload)
	require.NoError(t, err)

	sp := wire.SignedPayload{MachineID: wire.NewMachineID(), Signature: sig, Inner: payload}
	_, err = Validate(context.Background(), lookup, sp)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidateRejectsOwnerMismatchWithSameErrorAsUnknownMachine(t *testing.T) {
	signA := newTestSigner(t)
	signB := newTestSigner(t)
	machineID := wire.NewMachineID()
	// machine is owned by signB, but the payload is signed by signA.
	lookup := fakeLookup{owners: map[wire.MachineID]wire.ClientID{machineID: signB.Address()}}

	payload := wire.LogLine{AssignedName: "node-1", Line: "hi"}
	sig, err := signA.Sign(payload)
	require.NoError(t, err)

	sp := wire.SignedPayload{MachineID: machineID, Signature: sig, Inner: payload}
	_, err = Validate(context.Background(), lookup, sp)
	require.ErrorIs(t, err, ErrNotFound)
}
