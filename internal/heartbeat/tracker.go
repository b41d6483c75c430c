package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/alert"
	"github.com/volaticloud/fleetwatch/internal/enum"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/pubsub"
)

// AlertStore is the subset of internal/alert.Store the tracker needs:
// resolving the staleness alert a heartbeat implicitly clears, and
// raising one when the scanner finds a subject gone silent.
type AlertStore interface {
	ActiveForSubject(ctx context.Context, kind enum.AlertKind, subjectID string) (alert.Alert, bool, error)
	Resolve(ctx context.Context, alertID uuid.UUID, resolvedAt time.Time) error
	UpsertActive(ctx context.Context, a alert.Alert) (bool, error)
}

// Notifier is invoked whenever the tracker resolves or the scanner raises
// an alert,
// so the caller can fan it out through alert.Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, a alert.Alert, resolved bool)
}

// Tracker records heartbeats and implicitly resolves the matching
// staleness alert the moment one arrives (spec.md §4.9).
type Tracker struct {
	store     *Store
	alerts    AlertStore
	notifier  Notifier
	publisher Publisher
}

// NewTracker builds a Tracker over store and alerts. notifier may be nil
// if the caller doesn't need raise/resolve notifications (e.g. tests).
func NewTracker(store *Store, alerts AlertStore, notifier Notifier) *Tracker {
	return &Tracker{store: store, alerts: alerts, notifier: notifier}
}

// WithPublisher attaches a pubsub.PubSub so every implicit resolution
// also fans out a live HeartbeatEvent on pubsub.HeartbeatTopic,
// independent of whether any notification channel is configured.
func (t *Tracker) WithPublisher(p Publisher) *Tracker {
	t.publisher = p
	return t
}

// Ingest records a heartbeat for subjectID under organizationID and, in
// the same logical step, resolves any active NoXHeartbeat alert for that
// subject — the implicit-resolution rule that makes heartbeats
// self-healing instead of requiring an operator to acknowledge them.
func (t *Tracker) Ingest(ctx context.Context, kind enum.HeartbeatKind, subjectID, organizationID string, at time.Time) error {
	if err := t.store.Touch(ctx, kind, subjectID, organizationID, at); err != nil {
		return err
	}

	alertKind := kind.AlertKind()
	active, ok, err := t.alerts.ActiveForSubject(ctx, alertKind, subjectID)
	if err != nil {
		return fmt.Errorf("heartbeat: checking active alert for %s: %w", subjectID, err)
	}
	if !ok {
		return nil
	}

	if err := t.alerts.Resolve(ctx, active.AlertID, at); err != nil {
		return fmt.Errorf("heartbeat: resolving alert for %s: %w", subjectID, err)
	}
	if t.notifier != nil {
		t.notifier.Notify(ctx, active, true)
	}
	t.publish(ctx, kind, subjectID, at)
	return nil
}

func (t *Tracker) publish(ctx context.Context, kind enum.HeartbeatKind, subjectID string, at time.Time) {
	if t.publisher == nil {
		return
	}
	event := pubsub.HeartbeatEvent{Type: pubsub.EventTypeHeartbeatRevived, Kind: string(kind), SubjectID: subjectID, Timestamp: at}
	if err := t.publisher.Publish(ctx, pubsub.HeartbeatTopic(subjectID), event); err != nil {
		logger.GetLogger(ctx).Warn("heartbeat: publishing event failed",
			zap.String("subject_id", subjectID), zap.Error(err))
	}
}
