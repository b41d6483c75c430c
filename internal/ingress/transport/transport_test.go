package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/wire"
)

func TestServeAgentConnDecodesAndInvokesHandler(t *testing.T) {
	var mu sync.Mutex
	var received []wire.SignedPayload

	handler := func(ctx context.Context, sp wire.SignedPayload) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, sp)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ServeAgentConn(ctx, w, r, handler)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	sp := wire.SignedPayload{
		MachineID: wire.NewMachineID(),
		Signature: [65]byte{1},
		Inner:     wire.LogLine{AssignedName: "node-1", Line: "hello"},
	}
	frame, err := wire.EncodeFrame(sp)
	require.NoError(t, err)
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, "node-1", received[0].Inner.(wire.LogLine).AssignedName)
	mu.Unlock()
}

func TestServeAgentConnSkipsMalformedFrames(t *testing.T) {
	var mu sync.Mutex
	count := 0
	handler := func(ctx context.Context, sp wire.SignedPayload) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ServeAgentConn(ctx, w, r, handler)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 0, count)
	mu.Unlock()
}
