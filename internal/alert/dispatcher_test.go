package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/alert/channel"
	"github.com/volaticloud/fleetwatch/internal/enum"
	"github.com/volaticloud/fleetwatch/internal/pubsub"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

type fakeChannelSettings struct {
	mask         uint64
	destinations map[enum.ChannelKind][]string
}

func (f fakeChannelSettings) EnabledMask(ctx context.Context, organizationID string) (uint64, error) {
	return f.mask, nil
}

func (f fakeChannelSettings) Destinations(ctx context.Context, organizationID string, kind enum.ChannelKind) ([]string, error) {
	return f.destinations[kind], nil
}

type mockChannel struct {
	kind      enum.ChannelKind
	sendCalls []channel.Message
	sendErr   error
}

func (m *mockChannel) Kind() enum.ChannelKind { return m.kind }

func (m *mockChannel) Send(ctx context.Context, destinations []string, msg channel.Message) error {
	m.sendCalls = append(m.sendCalls, msg)
	return m.sendErr
}

func newTestAlert() Alert {
	return Alert{
		AlertID:        wire.NewAlertID(string(enum.AlertKindNoNodeHeartbeat), "node-1", ""),
		OrganizationID: "org-1",
		Kind:           enum.AlertKindNoNodeHeartbeat,
		SubjectID:      "node-1",
		Severity:       enum.AlertSeverityCritical,
		RaisedAt:       time.Now(),
	}
}

func TestDispatchSendsOnlyToEnabledChannels(t *testing.T) {
	email := &mockChannel{kind: enum.ChannelKindEmail}
	chat := &mockChannel{kind: enum.ChannelKindChat}

	settings := fakeChannelSettings{
		mask: enum.AlertKindNoNodeHeartbeat.Bit(),
		destinations: map[enum.ChannelKind][]string{
			enum.ChannelKindEmail: {"ops@acme.test"},
			enum.ChannelKindChat:  {"https://chat.example/webhook"},
		},
	}
	d := NewDispatcher(settings, email, chat)

	err := d.Dispatch(context.Background(), newTestAlert(), false)
	require.NoError(t, err)
	require.Len(t, email.sendCalls, 1)
	require.Len(t, chat.sendCalls, 1)
}

func TestDispatchSkipsChannelsNotInMask(t *testing.T) {
	email := &mockChannel{kind: enum.ChannelKindEmail}
	settings := fakeChannelSettings{
		mask:         0, // nothing enabled
		destinations: map[enum.ChannelKind][]string{enum.ChannelKindEmail: {"ops@acme.test"}},
	}
	d := NewDispatcher(settings, email)

	err := d.Dispatch(context.Background(), newTestAlert(), false)
	require.NoError(t, err)
	require.Empty(t, email.sendCalls)
}

func TestDispatchSkipsChannelsWithNoDestinations(t *testing.T) {
	email := &mockChannel{kind: enum.ChannelKindEmail}
	settings := fakeChannelSettings{mask: enum.AlertKindNoNodeHeartbeat.Bit()}
	d := NewDispatcher(settings, email)

	err := d.Dispatch(context.Background(), newTestAlert(), false)
	require.NoError(t, err)
	require.Empty(t, email.sendCalls)
}

func TestDispatchAggregatesErrorsWithoutBlockingOtherChannels(t *testing.T) {
	failing := &mockChannel{kind: enum.ChannelKindEmail, sendErr: errors.New("boom")}
	succeeding := &mockChannel{kind: enum.ChannelKindChat}

	settings := fakeChannelSettings{
		mask: enum.AlertKindNoNodeHeartbeat.Bit(),
		destinations: map[enum.ChannelKind][]string{
			enum.ChannelKindEmail: {"ops@acme.test"},
			enum.ChannelKindChat:  {"https://chat.example/webhook"},
		},
	}
	d := NewDispatcher(settings, failing, succeeding)

	err := d.Dispatch(context.Background(), newTestAlert(), false)
	require.Error(t, err)
	require.Len(t, succeeding.sendCalls, 1, "a failing channel must not block a succeeding one")
}

func TestDispatchRendersResolutionDifferentlyFromRaise(t *testing.T) {
	email := &mockChannel{kind: enum.ChannelKindEmail}
	settings := fakeChannelSettings{
		mask:         enum.AlertKindNoNodeHeartbeat.Bit(),
		destinations: map[enum.ChannelKind][]string{enum.ChannelKindEmail: {"ops@acme.test"}},
	}
	d := NewDispatcher(settings, email)

	require.NoError(t, d.Dispatch(context.Background(), newTestAlert(), false))
	require.NoError(t, d.Dispatch(context.Background(), newTestAlert(), true))

	require.Len(t, email.sendCalls, 2)
	require.NotEqual(t, email.sendCalls[0].Subject, email.sendCalls[1].Subject)
}

func TestDispatchPublishesEventWhenPublisherAttached(t *testing.T) {
	settings := fakeChannelSettings{mask: 0}
	pub := pubsub.NewMemoryPubSub()
	defer pub.Close()
	d := NewDispatcher(settings).WithPublisher(pub)

	ctx := context.Background()
	ch, unsub := pub.Subscribe(ctx, pubsub.OrgAlertsTopic("org-1"))
	defer unsub()

	require.NoError(t, d.Dispatch(ctx, newTestAlert(), false))

	select {
	case msg := <-ch:
		var event pubsub.AlertEvent
		require.NoError(t, json.Unmarshal(msg, &event))
		require.Equal(t, pubsub.EventTypeAlertRaised, event.Type)
		require.Equal(t, "node-1", event.SubjectID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published alert event")
	}
}
