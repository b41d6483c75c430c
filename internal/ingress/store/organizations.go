package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// Organization is the minimal account stub FleetWatch needs as the
// foreign key root for clients, machines, and alert dispatch — the
// account/org system itself is out of scope.
type Organization struct {
	ID             string
	Name           string
	ChannelBitmask uint64
}

// ErrOrganizationNotFound is returned when an organization row is missing.
var ErrOrganizationNotFound = errors.New("store: organization not found")

// EnsureOrganization inserts organizationID if it doesn't already exist.
func (s *Store) EnsureOrganization(ctx context.Context, organizationID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, channel_bitmask) VALUES ($1, $2, 0)
		ON CONFLICT (id) DO NOTHING`,
		organizationID, name,
	)
	if err != nil {
		return fmt.Errorf("store: ensuring organization: %w", err)
	}
	return nil
}

// Organization loads an organization by ID, including its enabled-channel
// bitmask (bit 0 reserved unused, per spec §9).
func (s *Store) Organization(ctx context.Context, organizationID string) (Organization, error) {
	var org Organization
	org.ID = organizationID
	err := s.db.QueryRowContext(ctx,
		`SELECT name, channel_bitmask FROM organizations WHERE id = $1`,
		organizationID,
	).Scan(&org.Name, &org.ChannelBitmask)
	if errors.Is(err, sql.ErrNoRows) {
		return Organization{}, ErrOrganizationNotFound
	}
	if err != nil {
		return Organization{}, fmt.Errorf("store: loading organization: %w", err)
	}
	return org, nil
}

// SetChannelBitmask overwrites an organization's enabled-alert-channel bitmask.
func (s *Store) SetChannelBitmask(ctx context.Context, organizationID string, mask uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET channel_bitmask = $1 WHERE id = $2`,
		mask, organizationID,
	)
	if err != nil {
		return fmt.Errorf("store: setting channel bitmask: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: confirming channel bitmask update: %w", err)
	}
	if n == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

// EnabledMask implements alert.ChannelSettings.
func (s *Store) EnabledMask(ctx context.Context, organizationID string) (uint64, error) {
	org, err := s.Organization(ctx, organizationID)
	if err != nil {
		return 0, err
	}
	return org.ChannelBitmask, nil
}

// Destinations implements alert.ChannelSettings.
func (s *Store) Destinations(ctx context.Context, organizationID string, kind enum.ChannelKind) ([]string, error) {
	return s.ChannelDestinations(ctx, organizationID, string(kind))
}

// ChannelDestination is one configured delivery target for an
// organization's alert channel (an email address, a webhook URL, ...).
type ChannelDestination struct {
	ChannelKind string
	Destination string
}

// SetChannelDestination registers (or re-registers) a destination for a
// channel kind under an organization.
func (s *Store) SetChannelDestination(ctx context.Context, organizationID, channelKind, destination string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_channel_settings (organization_id, channel_kind, destination)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, channel_kind, destination) DO NOTHING`,
		organizationID, channelKind, destination,
	)
	if err != nil {
		return fmt.Errorf("store: setting channel destination: %w", err)
	}
	return nil
}

// ChannelDestinations returns every destination configured for a channel
// kind under an organization.
func (s *Store) ChannelDestinations(ctx context.Context, organizationID, channelKind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination FROM org_channel_settings WHERE organization_id = $1 AND channel_kind = $2`,
		organizationID, channelKind,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing channel destinations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var dest string
		if err := rows.Scan(&dest); err != nil {
			return nil, fmt.Errorf("store: scanning channel destination: %w", err)
		}
		out = append(out, dest)
	}
	return out, rows.Err()
}
