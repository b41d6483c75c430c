package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

func TestNewEmailChannelRequiresAPIKeyAndFromEmail(t *testing.T) {
	_, err := NewEmailChannel(EmailConfig{FromEmail: "a@test.com"})
	require.Error(t, err)

	_, err = NewEmailChannel(EmailConfig{APIKey: "key"})
	require.Error(t, err)

	ch, err := NewEmailChannel(EmailConfig{APIKey: "key", FromEmail: "alerts@fleetwatch.test"})
	require.NoError(t, err)
	require.Equal(t, enum.ChannelKindEmail, ch.Kind())
}

func TestRenderEmailDistinguishesRaiseFromResolve(t *testing.T) {
	subjectRaised, bodyRaised, htmlRaised := RenderEmail(enum.AlertKindNoNodeHeartbeat, "eigenda-abc", enum.AlertSeverityCritical, false)
	subjectResolved, bodyResolved, htmlResolved := RenderEmail(enum.AlertKindNoNodeHeartbeat, "eigenda-abc", enum.AlertSeverityCritical, true)

	require.NotEqual(t, subjectRaised, subjectResolved)
	require.NotEqual(t, bodyRaised, bodyResolved)
	require.NotEmpty(t, htmlRaised)
	require.NotEmpty(t, htmlResolved)
	require.Contains(t, subjectRaised, "eigenda-abc")
}
