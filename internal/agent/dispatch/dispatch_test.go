package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/wire"
)

type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }
func (f *fakeConn) Close() error                       { return nil }

func (f *fakeConn) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestActorWritesEnqueuedPayloads(t *testing.T) {
	a := New()
	conn := &fakeConn{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, conn)
		close(done)
	}()

	sp := wire.SignedPayload{
		MachineID: wire.NewMachineID(),
		Signature: [65]byte{9},
		Inner:     wire.LogLine{AssignedName: "node-1", Line: "hello"},
	}
	require.NoError(t, a.Send(ctx, sp))

	require.Eventually(t, func() bool {
		return len(conn.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	var frame wire.Frame
	require.NoError(t, json.Unmarshal(conn.snapshot()[0], &frame))
	require.Equal(t, "log_line", frame.Kind)

	cancel()
	<-done
}

func TestActorDropsPayloadOnWriteError(t *testing.T) {
	a := New()
	conn := &fakeConn{writeErr: errors.New("connection reset")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, conn)
		close(done)
	}()

	sp := wire.SignedPayload{MachineID: wire.NewMachineID(), Inner: wire.LogLine{AssignedName: "n", Line: "x"}}
	require.NoError(t, a.Send(ctx, sp))

	// give the actor a moment to process and fail the write; it must not
	// panic or block despite the error.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, conn.snapshot())

	cancel()
	<-done
}

func TestSendRespectsContextCancellation(t *testing.T) {
	a := &Actor{mailbox: make(chan wire.SignedPayload)} // unbuffered, no reader

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Send(ctx, wire.SignedPayload{Inner: wire.LogLine{}})
	require.ErrorIs(t, err, context.Canceled)
}
