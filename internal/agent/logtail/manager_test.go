package logtail

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/agent/avs"
)

type blockingOpener struct{}

func (blockingOpener) OpenLogs(ctx context.Context, containerName string) (io.ReadCloser, error) {
	<-ctx.Done()
	return io.NopCloser(strings.NewReader("")), ctx.Err()
}

func TestManagerAddReplacesExistingListener(t *testing.T) {
	m := &Manager{
		opener:  blockingOpener{},
		sink:    &fakeSink{},
		sign:    newTestSigner(t),
		entries: make(map[string]*entry),
	}

	ctx := context.Background()
	m.Add(ctx, avs.ConfiguredAvs{ContainerName: "c1", AssignedName: "c1-a"})
	first := m.entries["c1"]
	require.NotNil(t, first)

	m.Add(ctx, avs.ConfiguredAvs{ContainerName: "c1", AssignedName: "c1-b"})
	second := m.entries["c1"]
	require.NotNil(t, second)
	require.NotSame(t, first, second)

	select {
	case <-first.done:
	case <-time.After(time.Second):
		t.Fatal("previous listener was not cancelled")
	}
}

func TestManagerRemoveRecordsStopTime(t *testing.T) {
	m := &Manager{
		opener:  blockingOpener{},
		sink:    &fakeSink{},
		sign:    newTestSigner(t),
		entries: make(map[string]*entry),
	}

	ctx := context.Background()
	m.Add(ctx, avs.ConfiguredAvs{ContainerName: "c1", AssignedName: "c1-a"})
	m.Remove(ctx, "c1")

	e := m.entries["c1"]
	require.NotNil(t, e)
	require.False(t, e.stoppedAt.IsZero())
}

func TestManagerRemoveUnknownContainerIsNoop(t *testing.T) {
	m := &Manager{entries: make(map[string]*entry)}
	m.Remove(context.Background(), "does-not-exist")
}

type countingFailOpener struct {
	mu    sync.Mutex
	calls int
}

func (o *countingFailOpener) OpenLogs(ctx context.Context, containerName string) (io.ReadCloser, error) {
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()
	return nil, errOpenFailed
}

func (o *countingFailOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func TestManagerRespawnsListenerUpToRetryLimitThenGivesUp(t *testing.T) {
	opener := &countingFailOpener{}
	m := &Manager{
		opener:  opener,
		sink:    &fakeSink{},
		sign:    newTestSigner(t),
		entries: make(map[string]*entry),
	}

	ctx := context.Background()
	m.Add(ctx, avs.ConfiguredAvs{ContainerName: "c1", AssignedName: "c1-a"})
	e := m.entries["c1"]
	require.NotNil(t, e)

	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not give up after exhausting its retry budget")
	}

	require.Equal(t, restartRetryLimit+1, opener.count(), "one initial open plus restartRetryLimit re-opens")
}

func TestManagerStopsRetryingOnceRemoved(t *testing.T) {
	opener := &countingFailOpener{}
	m := &Manager{
		opener:  opener,
		sink:    &fakeSink{},
		sign:    newTestSigner(t),
		settle:  200 * time.Millisecond,
		entries: make(map[string]*entry),
	}

	ctx := context.Background()
	m.Add(ctx, avs.ConfiguredAvs{ContainerName: "c1", AssignedName: "c1-a"})
	// Remove well before the initial listener's settle delay elapses, so
	// the supervisor is cancelled mid-wait rather than exhausting its budget.
	m.Remove(ctx, "c1")

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 0, opener.count(), "cancellation must stop the retry loop before it ever opens a stream")
}
