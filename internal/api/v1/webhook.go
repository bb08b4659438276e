package v1

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukastack/billing/internal/api/dto"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/service"
)

// maxWebhookBodyBytes caps the accepted payload size. Provider events are a
// few kilobytes; anything bigger is not one of ours.
const maxWebhookBodyBytes = 1 << 20

type WebhookHandler struct {
	service service.WebhookService
	logger  *logger.Logger
}

func NewWebhookHandler(service service.WebhookService, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// HandleStripeWebhook ingests one provider event delivery.
//
// The response contract is acknowledge-almost-always: a verified event is
// acknowledged with 200 even when its handler failed, because the failure is
// on the ledger and will be replayed. Only a missing configuration yields a
// non-2xx, telling the provider to keep the event.
//
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, ierr.NewErrorResponse(
			ierr.WithError(err).WithHint("Failed to read request body").Mark(ierr.ErrValidation)))
		return
	}

	err = h.service.ProcessEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		switch {
		case ierr.IsServiceDisabled(err):
			c.JSON(http.StatusServiceUnavailable, ierr.NewErrorResponse(err))
			return
		case ierr.Is(err, ierr.ErrPermissionDenied):
			// A forged or stale signature is logged and swallowed; an error
			// response would only make the provider redeliver it.
			h.logger.WithContext(c.Request.Context()).Warnw("webhook signature rejected", "error", err)
		default:
			c.JSON(http.StatusInternalServerError, ierr.NewErrorResponse(err))
			return
		}
	}

	c.JSON(http.StatusOK, dto.WebhookAckResponse{Received: true})
}
