package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/volaticloud/fleetwatch/internal/wire"
)

// Store wraps a *sql.DB with FleetWatch's table operations. It has no
// in-memory state of its own, so a Store built from an open *sql.DB is
// safe for concurrent use exactly as database/sql itself is.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened, already-migrated database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

// ErrOwnerNotFound is returned when a client has no owning organization.
var ErrOwnerNotFound = errors.New("store: client has no organization")

// OwnerOf implements validator.MachineLookup.
func (s *Store) OwnerOf(ctx context.Context, machineID wire.MachineID) (wire.ClientID, bool, error) {
	var ownerHex string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_client_id FROM machines WHERE machine_id = $1`,
		machineID.String(),
	).Scan(&ownerHex)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.ClientID{}, false, nil
	}
	if err != nil {
		return wire.ClientID{}, false, fmt.Errorf("store: looking up machine owner: %w", err)
	}
	clientID, err := parseClientID(ownerHex)
	if err != nil {
		return wire.ClientID{}, false, err
	}
	return clientID, true, nil
}

// RegisterMachine records that clientID owns machineID, reassigning the
// owner if the machine is already registered.
func (s *Store) RegisterMachine(ctx context.Context, machineID wire.MachineID, clientID wire.ClientID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO machines (machine_id, owner_client_id) VALUES ($1, $2)
		ON CONFLICT (machine_id) DO UPDATE SET owner_client_id = excluded.owner_client_id`,
		machineID.String(), clientID.String())
	if err != nil {
		return fmt.Errorf("store: registering machine: %w", err)
	}
	return nil
}

// RegisterClient ensures a clients row exists under the given organization.
func (s *Store) RegisterClient(ctx context.Context, clientID wire.ClientID, organizationID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (client_id, organization_id) VALUES ($1, $2)
		ON CONFLICT (client_id) DO UPDATE SET organization_id = excluded.organization_id`,
		clientID.String(), organizationID)
	if err != nil {
		return fmt.Errorf("store: registering client: %w", err)
	}
	return nil
}

// OrganizationOf resolves the organization a client belongs to.
func (s *Store) OrganizationOf(ctx context.Context, clientID wire.ClientID) (string, error) {
	var orgID string
	err := s.db.QueryRowContext(ctx,
		`SELECT organization_id FROM clients WHERE client_id = $1`,
		clientID.String(),
	).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: client %s: %w", clientID, ErrOwnerNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store: looking up client organization: %w", err)
	}
	return orgID, nil
}

// parseClientID decodes the 0x-prefixed hex string clients/machines rows
// store owner_client_id as, back into a wire.ClientID.
func parseClientID(s string) (wire.ClientID, error) {
	var c wire.ClientID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return wire.ClientID{}, fmt.Errorf("store: stored client_id %q is invalid: %w", s, err)
	}
	if len(raw) != len(c) {
		return wire.ClientID{}, fmt.Errorf("store: stored client_id %q has wrong length", s)
	}
	copy(c[:], raw)
	return c, nil
}
