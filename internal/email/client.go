package email

import (
	"context"

	"github.com/resend/resend-go/v2"

	"github.com/dukastack/billing/internal/config"
	ierr "github.com/dukastack/billing/internal/errors"
)

// Client wraps the resend API client. When email is not configured the
// client is disabled and sends are skipped, never failed.
type Client struct {
	resend      *resend.Client
	enabled     bool
	fromAddress string
}

// NewClient creates an email client from configuration.
func NewClient(cfg *config.Configuration) *Client {
	c := &Client{
		enabled:     cfg.Email.Enabled && cfg.Email.APIKey != "",
		fromAddress: cfg.Email.FromAddress,
	}
	if c.enabled {
		c.resend = resend.NewClient(cfg.Email.APIKey)
	}
	return c
}

// IsEnabled reports whether the client can actually send.
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// GetFromAddress returns the configured sender address.
func (c *Client) GetFromAddress() string {
	return c.fromAddress
}

// Send delivers one email and returns the provider message id.
func (c *Client) Send(ctx context.Context, from, to, subject, html string) (string, error) {
	if !c.enabled {
		return "", ierr.NewError("email client is disabled").
			Mark(ierr.ErrServiceDisabled)
	}

	sent, err := c.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to send email").
			WithReportableDetails(map[string]interface{}{"to": to}).
			Mark(ierr.ErrHTTPClient)
	}

	return sent.Id, nil
}
