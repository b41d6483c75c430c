package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/alert/channel"
	"github.com/volaticloud/fleetwatch/internal/enum"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/pubsub"
)

// ChannelSettings resolves an organization's enabled-channel bitmask and
// configured destinations. internal/ingress/store.Store satisfies this
// via its organizations and org_channel_settings tables.
type ChannelSettings interface {
	EnabledMask(ctx context.Context, organizationID string) (uint64, error)
	Destinations(ctx context.Context, organizationID string, kind enum.ChannelKind) ([]string, error)
}

// Publisher fans raise/resolve events out to live subscribers, independent
// of the channel deliveries Dispatch performs. pubsub.MemoryPubSub and
// pubsub.RedisPubSub both satisfy this directly.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Dispatcher fans a raised or resolved Alert out to every channel that has
// a configured destination, provided the alert kind's bit is set in the
// owning organization's bitmask (spec.md §4.11). Each channel is tried
// independently; one adapter's failure never blocks another's delivery.
type Dispatcher struct {
	settings  ChannelSettings
	channels  map[enum.ChannelKind]channel.Channel
	publisher Publisher
}

// NewDispatcher builds a Dispatcher over the given channel adapters,
// indexed by their own Kind().
func NewDispatcher(settings ChannelSettings, channels ...channel.Channel) *Dispatcher {
	byKind := make(map[enum.ChannelKind]channel.Channel, len(channels))
	for _, ch := range channels {
		byKind[ch.Kind()] = ch
	}
	return &Dispatcher{settings: settings, channels: byKind}
}

// WithPublisher attaches a pubsub.PubSub so every dispatch also fans out a
// live AlertEvent on the organization's and subject's topics, independent
// of whether any channel adapter is configured.
func (d *Dispatcher) WithPublisher(p Publisher) *Dispatcher {
	d.publisher = p
	return d
}

// Dispatch renders and delivers a through every channel the owning
// organization has configured a destination for, if a.Kind's bit is set
// in the organization's bitmask; otherwise no channel is invoked.
// resolved distinguishes a raise notification from a resolution
// notification.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert, resolved bool) error {
	mask, err := d.settings.EnabledMask(ctx, a.OrganizationID)
	if err != nil {
		return fmt.Errorf("alert: loading channel bitmask: %w", err)
	}

	bit := a.Kind.Bit()
	subject, body, htmlBody := channel.RenderEmail(a.Kind, a.SubjectID, a.Severity, resolved)

	var result error
	for kind, ch := range d.channels {
		if bit&mask == 0 {
			continue
		}

		destinations, err := d.settings.Destinations(ctx, a.OrganizationID, kind)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("alert: loading %s destinations: %w", kind, err))
			continue
		}
		if len(destinations) == 0 {
			continue
		}

		msg := channel.Message{
			AlertID:  a.AlertID.String(),
			Subject:  subject,
			Body:     body,
			HTMLBody: htmlBody,
			Severity: string(a.Severity),
			Metadata: map[string]string{
				"alert_id":   a.AlertID.String(),
				"kind":       string(a.Kind),
				"subject_id": a.SubjectID,
			},
		}

		if err := ch.Send(ctx, destinations, msg); err != nil {
			result = multierror.Append(result, fmt.Errorf("alert: delivering via %s: %w", kind, err))
		}
	}

	d.publish(ctx, a, resolved)
	return result
}

func (d *Dispatcher) publish(ctx context.Context, a Alert, resolved bool) {
	if d.publisher == nil {
		return
	}

	eventType := pubsub.EventTypeAlertRaised
	if resolved {
		eventType = pubsub.EventTypeAlertResolved
	}
	event := pubsub.AlertEvent{
		Type:           eventType,
		AlertID:        a.AlertID.String(),
		OrganizationID: a.OrganizationID,
		Kind:           string(a.Kind),
		SubjectID:      a.SubjectID,
		Severity:       string(a.Severity),
		Timestamp:      time.Now(),
	}

	for _, topic := range []string{pubsub.OrgAlertsTopic(a.OrganizationID), pubsub.SubjectAlertTopic(a.SubjectID)} {
		if err := d.publisher.Publish(ctx, topic, event); err != nil {
			logger.GetLogger(ctx).Warn("alert: publishing event failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}
