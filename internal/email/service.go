package email

import (
	"context"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
)

// SendResult is the transport outcome reported back to callers. Delivery is
// fire-and-forget: the result is logged, never retried inline.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sender is the email transport boundary the dunning engine and the worker
// depend on.
type Sender interface {
	SendEmail(ctx context.Context, to, subject, html string) (*SendResult, error)
}

type service struct {
	client *Client
	logger *logger.Logger
}

// NewService creates the resend-backed email sender.
func NewService(client *Client, logger *logger.Logger) Sender {
	return &service{client: client, logger: logger}
}

func (s *service) SendEmail(ctx context.Context, to, subject, html string) (*SendResult, error) {
	if !s.client.IsEnabled() {
		s.logger.Warnw("email client disabled, skipping send",
			"to", to,
			"subject", subject)
		return &SendResult{Success: false, Error: "email client is disabled"}, nil
	}

	messageID, err := s.client.Send(ctx, s.client.GetFromAddress(), to, subject, html)
	if err != nil {
		s.logger.Errorw("failed to send email",
			"error", err,
			"to", to,
			"subject", subject)
		return &SendResult{Success: false, Error: err.Error()}, ierr.WithError(err).
			WithHint("Email delivery failed").
			Mark(ierr.ErrHTTPClient)
	}

	s.logger.Infow("email sent",
		"message_id", messageID,
		"to", to,
		"subject", subject)
	return &SendResult{Success: true, MessageID: messageID}, nil
}
