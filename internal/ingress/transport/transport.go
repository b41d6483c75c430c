// Package transport implements the ingress side of the agent<->ingress
// websocket connection: it upgrades an HTTP request, reads frames, and
// hands each decoded SignedPayload to a Handler.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// readTimeout bounds how long a connection may go without a frame before
// it's considered dead.
const readTimeout = 90 * time.Second

// Handler processes one decoded SignedPayload read from a connection.
// Implementations are expected to run validator.Validate and then route
// the result to the heartbeat tracker, inventory store, or alert
// evaluator depending on payload kind.
type Handler func(ctx context.Context, sp wire.SignedPayload) error

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeAgentConn upgrades r to a websocket and reads frames from it until
// the connection closes or ctx is done, invoking handle for each one.
func ServeAgentConn(ctx context.Context, w http.ResponseWriter, r *http.Request, handle Handler) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log := logger.GetLogger(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("transport: discarding malformed frame", zap.Error(err))
			continue
		}

		sp, err := wire.DecodeFrame(frame)
		if err != nil {
			log.Warn("transport: discarding undecodable frame", zap.String("kind", frame.Kind), zap.Error(err))
			continue
		}

		if err := handle(ctx, sp); err != nil {
			log.Warn("transport: handler rejected frame", zap.String("kind", frame.Kind), zap.Error(err))
		}
	}
}
