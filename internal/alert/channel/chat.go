package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// chatHTTPTimeout bounds a single webhook POST.
const chatHTTPTimeout = 10 * time.Second

// ChatChannel posts a markdown-formatted message to a generic incoming
// webhook (Slack/Mattermost/Discord-compatible {"text": "..."} body). No
// pack library specializes in chat-webhook delivery, so this follows the
// corpus's general net/http POST idiom rather than reaching for a
// chat-specific SDK.
type ChatChannel struct {
	client *http.Client
}

// NewChatChannel builds a ChatChannel.
func NewChatChannel() *ChatChannel {
	return &ChatChannel{client: &http.Client{Timeout: chatHTTPTimeout}}
}

func (c *ChatChannel) Kind() enum.ChannelKind { return enum.ChannelKindChat }

type chatPayload struct {
	Text string `json:"text"`
}

// Send posts msg to every webhook URL in destinations. One failure
// doesn't stop delivery to the others; every failure is joined into the
// returned error.
func (c *ChatChannel) Send(ctx context.Context, destinations []string, msg Message) error {
	body := escapeControlChars(fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body))
	encoded, err := json.Marshal(chatPayload{Text: body})
	if err != nil {
		return fmt.Errorf("channel: encoding chat payload: %w", err)
	}

	var errs []error
	for _, url := range destinations {
		if err := c.post(ctx, url, encoded); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *ChatChannel) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("channel: building chat webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("channel: posting chat webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("channel: chat webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// escapeControlChars strips non-printable control characters (other than
// newline and tab) from a chat message body, since most webhook
// receivers reject or mangle raw control bytes embedded in log lines.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
