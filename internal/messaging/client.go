package messaging

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dukastack/billing/internal/config"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/httpclient"
	"github.com/dukastack/billing/internal/logger"
)

// SendResult is the transport outcome for one message.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Sender is the SMS/WhatsApp transport boundary. The concrete gateway
// behind it is out of scope; only this signature is depended on.
type Sender interface {
	SendMessage(ctx context.Context, to, text string) (*SendResult, error)
}

type gatewaySender struct {
	http       httpclient.Client
	gatewayURL string
	apiKey     string
	enabled    bool
	logger     *logger.Logger
}

// NewSender creates the gateway-backed message sender. With messaging
// disabled in configuration, sends are skipped and logged, never failed.
func NewSender(cfg *config.Configuration, http httpclient.Client, logger *logger.Logger) Sender {
	return &gatewaySender{
		http:       http,
		gatewayURL: cfg.Messaging.GatewayURL,
		apiKey:     cfg.Messaging.APIKey,
		enabled:    cfg.Messaging.Enabled && cfg.Messaging.GatewayURL != "",
		logger:     logger,
	}
}

type gatewayRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
}

func (s *gatewaySender) SendMessage(ctx context.Context, to, text string) (*SendResult, error) {
	if !s.enabled {
		s.logger.Warnw("messaging disabled, skipping send", "to", to)
		return &SendResult{Success: false, Error: "messaging is disabled"}, nil
	}

	body, err := json.Marshal(gatewayRequest{To: to, Text: text})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to serialize message").
			Mark(ierr.ErrValidation)
	}

	resp, err := s.http.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    s.gatewayURL,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + s.apiKey,
		},
		Body: body,
	})
	if err != nil {
		s.logger.Errorw("failed to send message", "error", err, "to", to)
		return &SendResult{Success: false, Error: err.Error()}, err
	}

	var gw gatewayResponse
	_ = json.Unmarshal(resp.Body, &gw)

	s.logger.Infow("message sent", "to", to, "message_id", gw.MessageID)
	return &SendResult{Success: true, MessageID: gw.MessageID}, nil
}
