package heartbeat

import (
	"context"

	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/alert"
	"github.com/volaticloud/fleetwatch/internal/logger"
)

// Dispatcher is the subset of alert.Dispatcher the notifier drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert, resolved bool) error
}

// Publisher fans a HeartbeatEvent out to live subscribers on
// pubsub.HeartbeatTopic, independent of whatever alert channels the
// Dispatcher delivers to. pubsub.MemoryPubSub and pubsub.RedisPubSub both
// satisfy this directly.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// DispatchNotifier adapts an alert.Dispatcher into a heartbeat.Notifier.
// Dispatch errors are logged and otherwise swallowed: a failed channel
// delivery must never block heartbeat ingestion or the scanner's tick.
type DispatchNotifier struct {
	Dispatcher Dispatcher
}

func (n DispatchNotifier) Notify(ctx context.Context, a alert.Alert, resolved bool) {
	if err := n.Dispatcher.Dispatch(ctx, a, resolved); err != nil {
		logger.GetLogger(ctx).Warn("heartbeat: alert dispatch failed",
			zap.String("subject_id", a.SubjectID), zap.String("kind", string(a.Kind)), zap.Bool("resolved", resolved), zap.Error(err))
	}
}
