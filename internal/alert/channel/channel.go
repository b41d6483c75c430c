// Package channel implements the delivery adapters C12's dispatcher fans
// alerts out to: email, chat, and incident-management webhooks.
package channel

import (
	"context"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// Message is an alert rendered for delivery, independent of which
// channel ends up sending it.
type Message struct {
	AlertID  string
	Subject  string
	Body     string
	HTMLBody string
	Severity string
	Metadata map[string]string
}

// Channel delivers a rendered Message to every destination registered
// for an organization under this channel's kind.
type Channel interface {
	Kind() enum.ChannelKind
	Send(ctx context.Context, destinations []string, msg Message) error
}
