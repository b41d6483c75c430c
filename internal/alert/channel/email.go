package channel

import (
	"context"
	"fmt"

	"github.com/matcornic/hermes/v2"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// EmailConfig configures the SendGrid channel.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// EmailChannel delivers alert emails via SendGrid, rendered through a
// Hermes template keyed by alert kind.
type EmailChannel struct {
	fromEmail string
	fromName  string
	client    *sendgrid.Client
}

// NewEmailChannel builds an EmailChannel from cfg.
func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("channel: sendgrid api key is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("channel: from email is required")
	}
	return &EmailChannel{
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		client:    sendgrid.NewSendClient(cfg.APIKey),
	}, nil
}

func (c *EmailChannel) Kind() enum.ChannelKind { return enum.ChannelKindEmail }

func (c *EmailChannel) Send(ctx context.Context, destinations []string, msg Message) error {
	if len(destinations) == 0 {
		return fmt.Errorf("channel: no email recipients configured")
	}

	from := mail.NewEmail(c.fromName, c.fromEmail)
	personalization := mail.NewPersonalization()
	for _, dest := range destinations {
		personalization.AddTos(mail.NewEmail("", dest))
	}

	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = msg.Subject
	m.AddPersonalizations(personalization)
	if msg.Body != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Body))
	}
	if msg.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	}

	response, err := c.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("channel: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("channel: sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

func hermesConfig() hermes.Hermes {
	return hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name:      "FleetWatch",
			Link:      "https://fleetwatch.internal",
			Copyright: "FleetWatch",
		},
	}
}

// RenderEmail builds the subject, plaintext, and HTML body for a raised
// or resolved alert of kind, keyed off the fixed set of AlertKinds
// rather than a free-form template registry.
func RenderEmail(kind enum.AlertKind, subjectID string, severity enum.AlertSeverity, resolved bool) (subject, body, htmlBody string) {
	h := hermesConfig()

	action := "raised"
	title := "Alert Raised"
	if resolved {
		action = "resolved"
		title = "Alert Resolved"
	}

	subject = fmt.Sprintf("[%s] %s %s for %s", severity, kind, action, subjectID)

	email := hermes.Email{
		Body: hermes.Body{
			Title: title,
			Intros: []string{
				fmt.Sprintf("Alert **%s** was %s for **%s**.", kind, action, subjectID),
			},
			Dictionary: []hermes.Entry{
				{Key: "Kind", Value: string(kind)},
				{Key: "Subject", Value: subjectID},
				{Key: "Severity", Value: string(severity)},
			},
			Outros: []string{
				"View fleet status in the FleetWatch dashboard.",
			},
		},
	}

	htmlBody, _ = h.GenerateHTML(email)
	body, _ = h.GeneratePlainText(email)
	return subject, body, htmlBody
}
