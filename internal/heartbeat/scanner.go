package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/alert"
	"github.com/volaticloud/fleetwatch/internal/enum"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/pubsub"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// defaultScanInterval is HEARTBEAT_SCAN_INTERVAL_SECS's default.
const defaultScanInterval = 30 * time.Second

// Owner reports whether this ingress replica is responsible for
// evaluating subjectID on this tick. internal/coordinate.Sharder
// satisfies this.
type Owner interface {
	Owns(subjectID string) bool
}

// Scanner periodically walks every tracked heartbeat subject and raises
// a staleness alert for any that haven't reported in within its kind's
// threshold. Sharded across ingress replicas via Owner so only one
// replica ever raises a given subject's alert on a tick (spec.md §4.9).
type Scanner struct {
	store      *Store
	alerts     AlertStore
	notifier   Notifier
	owner      Owner
	publisher  Publisher
	interval   time.Duration
	thresholds map[enum.HeartbeatKind]time.Duration
}

// NewScanner builds a Scanner with the default scan interval and each
// kind's default staleness threshold. Use WithInterval/WithThreshold to
// override either.
func NewScanner(store *Store, alerts AlertStore, notifier Notifier, owner Owner) *Scanner {
	return &Scanner{
		store:    store,
		alerts:   alerts,
		notifier: notifier,
		owner:    owner,
		interval: defaultScanInterval,
		thresholds: map[enum.HeartbeatKind]time.Duration{
			enum.HeartbeatKindClient:  enum.HeartbeatKindClient.DefaultThreshold(),
			enum.HeartbeatKindMachine: enum.HeartbeatKindMachine.DefaultThreshold(),
			enum.HeartbeatKindNode:    enum.HeartbeatKindNode.DefaultThreshold(),
		},
	}
}

// WithInterval overrides the scan tick interval.
func (s *Scanner) WithInterval(d time.Duration) *Scanner {
	s.interval = d
	return s
}

// WithThreshold overrides the staleness threshold for one kind.
func (s *Scanner) WithThreshold(kind enum.HeartbeatKind, d time.Duration) *Scanner {
	s.thresholds[kind] = d
	return s
}

// WithPublisher attaches a pubsub.PubSub so every raise also fans out a
// live HeartbeatEvent on pubsub.HeartbeatTopic, independent of whether
// any notification channel is configured.
func (s *Scanner) WithPublisher(p Publisher) *Scanner {
	s.publisher = p
	return s
}

// Run ticks every s.interval until ctx is done, evaluating all three
// heartbeat kinds on each tick.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan pass immediately, independent of the ticker; useful
// for tests and for scanning once at startup before the first tick.
func (s *Scanner) Tick(ctx context.Context) {
	now := time.Now()
	log := logger.GetLogger(ctx)

	for kind, threshold := range s.thresholds {
		subjects, err := s.store.ListAll(ctx, kind)
		if err != nil {
			log.Warn("heartbeat: scan listing failed", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}

		for _, subject := range subjects {
			if !s.owner.Owns(subject.SubjectID) {
				continue
			}
			if now.Sub(subject.LastSeen) < threshold {
				continue
			}
			s.raise(ctx, kind, subject, now)
		}
	}
}

func (s *Scanner) raise(ctx context.Context, kind enum.HeartbeatKind, subject SubjectInfo, now time.Time) {
	alertKind := kind.AlertKind()
	a := alert.Alert{
		AlertID:        wire.NewAlertID(string(alertKind), subject.SubjectID, ""),
		OrganizationID: subject.OrganizationID,
		Kind:           alertKind,
		SubjectID:      subject.SubjectID,
		Severity:       enum.AlertSeverityCritical,
		RaisedAt:       now,
	}

	raised, err := s.alerts.UpsertActive(ctx, a)
	if err != nil {
		logger.GetLogger(ctx).Warn("heartbeat: raising staleness alert failed",
			zap.String("subject_id", subject.SubjectID), zap.Error(err))
		return
	}
	if !raised {
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, a, false)
	}
	s.publish(ctx, kind, subject.SubjectID, now, pubsub.EventTypeHeartbeatStale)
}

func (s *Scanner) publish(ctx context.Context, kind enum.HeartbeatKind, subjectID string, at time.Time, eventType pubsub.EventType) {
	if s.publisher == nil {
		return
	}
	event := pubsub.HeartbeatEvent{Type: eventType, Kind: string(kind), SubjectID: subjectID, Timestamp: at}
	if err := s.publisher.Publish(ctx, pubsub.HeartbeatTopic(subjectID), event); err != nil {
		logger.GetLogger(ctx).Warn("heartbeat: publishing event failed",
			zap.String("subject_id", subjectID), zap.Error(err))
	}
}
