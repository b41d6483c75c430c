// Package validator implements C9: the ingress validator. Every inbound
// SignedPayload is validated the same five-step way before any handler
// touches persistence.
package validator

import (
	"context"
	"errors"

	"github.com/volaticloud/fleetwatch/internal/signer"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// ErrInvalidArgument means the signature itself was malformed.
var ErrInvalidArgument = errors.New("validator: malformed signature")

// ErrNotFound covers both "machine unknown" and "owner mismatch" — the
// two cases are deliberately indistinguishable to the caller so a probe
// against a random machine_id can't be used to enumerate valid ones
// (spec.md §4.8 step 4).
var ErrNotFound = errors.New("validator: machine not found")

// MachineLookup resolves a MachineID to the ClientID that owns it. It
// returns ok=false if the machine is unknown.
type MachineLookup interface {
	OwnerOf(ctx context.Context, machineID wire.MachineID) (wire.ClientID, bool, error)
}

// Result is what a validated SignedPayload resolves to: the machine and
// owning client the recovered signature was matched against, plus the
// inner payload.
type Result struct {
	MachineID wire.MachineID
	ClientID  wire.ClientID
	Payload   wire.Payload
}

// Validate runs the five-step check from spec.md §4.8. Nothing is
// persisted by this function; it only authenticates sp and resolves its
// owner, leaving all side effects to the caller.
func Validate(ctx context.Context, lookup MachineLookup, sp wire.SignedPayload) (Result, error) {
	if sp.Signature == ([65]byte{}) {
		return Result{}, ErrInvalidArgument
	}

	address, err := signer.Recover(sp.Inner, sp.Signature)
	if err != nil {
		return Result{}, ErrInvalidArgument
	}

	owner, ok, err := lookup.OwnerOf(ctx, sp.MachineID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrNotFound
	}

	if owner != address {
		return Result{}, ErrNotFound
	}

	return Result{MachineID: sp.MachineID, ClientID: owner, Payload: sp.Inner}, nil
}
