// Package dispatch implements C7: the dispatch actor. A single goroutine
// owns the outbound websocket connection to the ingress and is the only
// component allowed to touch it; everything else hands it signed payloads
// through a bounded mailbox.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// mailboxCap bounds the actor's inbound queue (spec.md §4.6).
const mailboxCap = 64

// writeTimeout bounds a single frame write so one stalled connection
// cannot wedge the actor forever.
const writeTimeout = 10 * time.Second

// Conn is the outbound transport the actor owns. *websocket.Conn
// satisfies it directly.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Actor is C7. Construct with New, then call Run in its own goroutine and
// Send from any other goroutine to enqueue a payload.
type Actor struct {
	mailbox chan wire.SignedPayload
}

// New builds an Actor with an empty bounded mailbox. The conn later passed
// to Run is owned exclusively by the actor from that point on.
func New() *Actor {
	return &Actor{mailbox: make(chan wire.SignedPayload, mailboxCap)}
}

// Send enqueues a signed payload for delivery. It blocks only until the
// mailbox has room or ctx is done, applying the backpressure spec.md
// §4.5-§4.6 describe.
func (a *Actor) Send(ctx context.Context, p wire.SignedPayload) error {
	select {
	case a.mailbox <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the mailbox and writes each payload to conn as a JSON frame.
// It does not retry on write failure — the ingress's heartbeat-freshness
// logic is what compensates for lost messages (spec.md §4.6). Run returns
// when ctx is done.
func (a *Actor) Run(ctx context.Context, conn Conn) {
	log := logger.GetLogger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-a.mailbox:
			if err := a.write(conn, p); err != nil {
				log.Warn("dispatch: send failed, dropping payload", zap.String("kind", p.Inner.Kind()), zap.Error(err))
			}
		}
	}
}

func (a *Actor) write(conn Conn, p wire.SignedPayload) error {
	frame, err := wire.EncodeFrame(p)
	if err != nil {
		return fmt.Errorf("dispatch: encoding frame: %w", err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("dispatch: marshaling frame: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("dispatch: setting write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("dispatch: writing frame: %w", err)
	}
	return nil
}
