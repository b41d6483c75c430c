// Package logtail implements C4 (the log listener) and C5 (the listener
// manager): one goroutine per tracked container that tails its log
// stream, signs each line, and hands it to the dispatch actor.
package logtail

import (
	"bufio"
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/agent/avs"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/signer"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// settleDelay lets a just-started container settle before its log stream
// is opened, so init noise isn't captured as application errors
// (spec.md §4.4).
const settleDelay = 10 * time.Second

// restartCoalesceWindow is how soon after a stop/die a start for the same
// container name is treated as the same logical restart rather than a
// brand new lifecycle (spec.md §4.4).
const restartCoalesceWindow = 30 * time.Second

// cancelAwait bounds how long Remove waits for a listener goroutine to
// exit cleanly after its context is cancelled before giving up on it.
const cancelAwait = 5 * time.Second

// LogOpener opens a "logs since now" stream for a running container. The
// Docker-backed implementation wraps client.ContainerLogs the same way
// the teacher's internal/docker runtime does for GetBotLogs.
type LogOpener interface {
	OpenLogs(ctx context.Context, containerName string) (io.ReadCloser, error)
}

// Sink is the dispatch actor's (C7) inbound mailbox, as seen by a listener.
type Sink interface {
	Send(ctx context.Context, p wire.SignedPayload) error
}

// Listener is C4: one log-tailing goroutine for one ConfiguredAvs.
type Listener struct {
	target    avs.ConfiguredAvs
	machineID wire.MachineID
	opener    LogOpener
	sink      Sink
	sign      *signer.Signer
	settle    time.Duration
}

// NewListener builds a Listener for target. Run must be called to start it.
// machineID identifies the agent's own host and is stamped into every
// SignedPayload envelope this listener produces.
func NewListener(target avs.ConfiguredAvs, machineID wire.MachineID, opener LogOpener, sink Sink, sign *signer.Signer) *Listener {
	return &Listener{target: target, machineID: machineID, opener: opener, sink: sink, sign: sign, settle: settleDelay}
}

// Run settles, opens the log stream, and forwards every line until the
// stream ends or ctx is cancelled. It always returns the ConfiguredAvs it
// was constructed with, so the manager can decide whether to re-spawn.
func (l *Listener) Run(ctx context.Context) avs.ConfiguredAvs {
	log := logger.GetLogger(ctx).With(
		zap.String("container", l.target.ContainerName),
		zap.String("assigned_name", l.target.AssignedName),
	)

	select {
	case <-time.After(l.settle):
	case <-ctx.Done():
		return l.target
	}

	stream, err := l.opener.OpenLogs(ctx, l.target.ContainerName)
	if err != nil {
		log.Error("logtail: opening log stream failed", zap.Error(err))
		return l.target
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return l.target
		}
		line := stripNulls(scanner.Text())
		l.send(ctx, log, line)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Warn("logtail: log stream ended with error", zap.Error(err))
	}
	return l.target
}

func (l *Listener) send(ctx context.Context, log *zap.Logger, line string) {
	payload := wire.LogLine{AssignedName: l.target.AssignedName, Line: line}
	sig, err := l.sign.Sign(payload)
	if err != nil {
		log.Warn("logtail: signing log line failed, dropping", zap.Error(err))
		return
	}
	signed := wire.SignedPayload{MachineID: l.machineID, Signature: sig, Inner: payload}
	if err := l.sink.Send(ctx, signed); err != nil {
		log.Warn("logtail: dropping log line, dispatch send failed", zap.Error(err))
	}
}

func stripNulls(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != 0 {
			out = append(out, s[i])
		}
	}
	return string(out)
}
