package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryPubSubPublishSubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx := context.Background()

	ch, unsub := ps.Subscribe(ctx, OrgAlertsTopic("org-1"))
	defer unsub()

	event := AlertEvent{Type: EventTypeAlertRaised, AlertID: "a1", OrganizationID: "org-1", Kind: "no_node_heartbeat", SubjectID: "node-1"}
	require.NoError(t, ps.Publish(ctx, OrgAlertsTopic("org-1"), event))

	select {
	case msg := <-ch:
		var got AlertEvent
		require.NoError(t, json.Unmarshal(msg, &got))
		require.Equal(t, event.AlertID, got.AlertID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryPubSubMultipleSubscribersBothReceive(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx := context.Background()
	topic := HeartbeatTopic("machine-1")

	ch1, unsub1 := ps.Subscribe(ctx, topic)
	defer unsub1()
	ch2, unsub2 := ps.Subscribe(ctx, topic)
	defer unsub2()

	require.NoError(t, ps.Publish(ctx, topic, "stale"))

	for i, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for message", i+1)
		}
	}
}

func TestMemoryPubSubDifferentTopicsDoNotCrossDeliver(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx := context.Background()

	ch1, unsub1 := ps.Subscribe(ctx, OrgAlertsTopic("org-1"))
	defer unsub1()
	ch2, unsub2 := ps.Subscribe(ctx, OrgAlertsTopic("org-2"))
	defer unsub2()

	require.NoError(t, ps.Publish(ctx, OrgAlertsTopic("org-1"), "event"))

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message on org-1")
	}

	select {
	case <-ch2:
		t.Fatal("org-2 subscriber should not receive org-1's event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryPubSubUnsubscribeClosesChannel(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx := context.Background()

	ch, unsub := ps.Subscribe(ctx, "topic")
	unsub()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, ps.Publish(ctx, "topic", "after-unsub"))
}

func TestMemoryPubSubCloseClosesAllSubscriberChannels(t *testing.T) {
	ps := NewMemoryPubSub()
	ch, _ := ps.Subscribe(context.Background(), "topic")

	require.NoError(t, ps.Close())

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel should be closed immediately after Close")
	}
}

func TestMemoryPubSubDoubleCleanupDoesNotPanic(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx, cancel := context.WithCancel(context.Background())

	_, unsub := ps.Subscribe(ctx, "topic")
	unsub()
	cancel()
	time.Sleep(20 * time.Millisecond)
}

func TestMemoryPubSubSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()
	ctx := context.Background()
	_, unsub := ps.Subscribe(ctx, "topic")
	defer unsub()

	for i := 0; i < 150; i++ {
		require.NoError(t, ps.Publish(ctx, "topic", i))
	}
}

func TestMemoryPubSubPublishWithNoSubscribersDoesNotError(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	require.NoError(t, ps.Publish(context.Background(), "no-subscribers", "event"))
}
