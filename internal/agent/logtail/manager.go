package logtail

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/agent/avs"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/signer"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

type entry struct {
	cancel    context.CancelFunc
	done      chan struct{}
	stoppedAt time.Time
}

// restartRetryLimit is how many times the manager will automatically
// re-open a listener whose stream ended on its own (not because the
// manager cancelled it) before giving up and waiting for the next
// container-runtime event. restartRetryWindow bounds how long that
// budget is tracked before it resets. Together these implement spec.md
// §9 Open Question 2's conservative rule: "re-open at most 3 times
// within 60s, then give up."
const (
	restartRetryLimit  = 3
	restartRetryWindow = 60 * time.Second
)

// Manager is C5: owns a log Listener per tracked container, keyed by
// container name, and handles the start/stop lifecycle the event router
// (C8) drives it with.
type Manager struct {
	opener    LogOpener
	sink      Sink
	sign      *signer.Signer
	machineID wire.MachineID
	settle    time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager builds a Manager. opener is the collaborator used to open a
// per-container log stream; sink is C7's mailbox.
func NewManager(opener LogOpener, sink Sink, sign *signer.Signer, machineID wire.MachineID) *Manager {
	return &Manager{
		opener:    opener,
		sink:      sink,
		sign:      sign,
		machineID: machineID,
		settle:    settleDelay,
		entries:   make(map[string]*entry),
	}
}

// Add starts a listener for target, replacing any existing one for the
// same container name. If a listener for this name stopped within the
// last 30s, this is logged as a coalesced restart rather than a fresh
// lifecycle, matching spec.md §4.4.
func (m *Manager) Add(ctx context.Context, target avs.ConfiguredAvs) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logger.GetLogger(ctx).With(zap.String("container", target.ContainerName))

	if prev, ok := m.entries[target.ContainerName]; ok {
		if !prev.stoppedAt.IsZero() && time.Since(prev.stoppedAt) <= restartCoalesceWindow {
			log.Info("logtail: coalescing restart into a fresh listener")
		}
		m.stopLocked(prev)
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.entries[target.ContainerName] = &entry{cancel: cancel, done: done}

	go m.supervise(listenerCtx, done, target)
}

// supervise runs target's listener to completion and, if the stream
// ended on its own rather than the manager cancelling listenerCtx,
// re-spawns a fresh Listener for the same target — at most
// restartRetryLimit times within restartRetryWindow. Once that budget is
// exhausted it gives up and leaves the container untailed until the next
// independent start/stop event from the container runtime re-adds it.
func (m *Manager) supervise(listenerCtx context.Context, done chan struct{}, target avs.ConfiguredAvs) {
	defer close(done)

	log := logger.GetLogger(listenerCtx).With(zap.String("container", target.ContainerName))
	windowStart := time.Now()
	retries := 0

	for {
		listener := NewListener(target, m.machineID, m.opener, m.sink, m.sign)
		listener.settle = m.settle
		target = listener.Run(listenerCtx)

		if listenerCtx.Err() != nil {
			return
		}

		if time.Since(windowStart) > restartRetryWindow {
			windowStart = time.Now()
			retries = 0
		}
		retries++
		if retries > restartRetryLimit {
			log.Warn("logtail: giving up after repeated stream failures, waiting for next container event",
				zap.Int("retries", retries-1))
			return
		}
		log.Info("logtail: re-opening log stream after transient failure", zap.Int("attempt", retries))
	}
}

// Remove stops the listener for containerName, if any, and records the
// stop time so a subsequent Add within the coalescing window is
// recognized as the same logical restart.
func (m *Manager) Remove(ctx context.Context, containerName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[containerName]
	if !ok {
		return
	}
	m.stopLocked(e)
	e.stoppedAt = time.Now()
}

// stopLocked cancels e's listener and waits up to cancelAwait for it to
// exit before giving up; the goroutine is left to finish on its own if it
// doesn't, since its only resources are the log stream it owns.
func (m *Manager) stopLocked(e *entry) {
	e.cancel()
	select {
	case <-e.done:
	case <-time.After(cancelAwait):
	}
}
