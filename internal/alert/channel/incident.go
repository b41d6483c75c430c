package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// incidentHTTPTimeout bounds a single webhook POST.
const incidentHTTPTimeout = 10 * time.Second

// IncidentChannel posts a structured event to an organization's
// incident-management webhook (PagerDuty/Opsgenie-style generic events
// API), deduplicated on the alert's AlertID so repeated raises of the
// same condition collapse into one incident instead of paging twice.
type IncidentChannel struct {
	client *http.Client
}

// NewIncidentChannel builds an IncidentChannel.
func NewIncidentChannel() *IncidentChannel {
	return &IncidentChannel{client: &http.Client{Timeout: incidentHTTPTimeout}}
}

func (c *IncidentChannel) Kind() enum.ChannelKind { return enum.ChannelKindIncident }

type incidentEvent struct {
	DedupKey string            `json:"dedup_key"`
	Summary  string            `json:"summary"`
	Severity string            `json:"severity"`
	Details  map[string]string `json:"details,omitempty"`
}

// Send posts a structured event to every incident webhook URL in
// destinations, keyed for dedup by msg.AlertID.
func (c *IncidentChannel) Send(ctx context.Context, destinations []string, msg Message) error {
	encoded, err := json.Marshal(incidentEvent{
		DedupKey: msg.AlertID,
		Summary:  msg.Subject,
		Severity: msg.Severity,
		Details:  msg.Metadata,
	})
	if err != nil {
		return fmt.Errorf("channel: encoding incident event: %w", err)
	}

	for _, url := range destinations {
		if err := c.post(ctx, url, encoded); err != nil {
			return err
		}
	}
	return nil
}

func (c *IncidentChannel) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("channel: building incident webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("channel: posting incident webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("channel: incident webhook returned status %d", resp.StatusCode)
	}
	return nil
}
