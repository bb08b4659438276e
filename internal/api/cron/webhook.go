package cron

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/service"
)

// WebhookHandler exposes the webhook ledger maintenance passes.
type WebhookHandler struct {
	webhook service.WebhookService
	logger  *logger.Logger
}

func NewWebhookHandler(webhook service.WebhookService, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{webhook: webhook, logger: logger}
}

// ReplayFailedEvents re-runs the handlers for events whose last attempt
// failed.
//
// @Router /cron/webhooks/replay [post]
func (h *WebhookHandler) ReplayFailedEvents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ierr.NewErrorResponse(
				ierr.NewError("limit must be a non-negative integer").Mark(ierr.ErrValidation)))
			return
		}
		limit = parsed
	}

	h.logger.WithContext(c.Request.Context()).Infow("starting webhook replay", "limit", limit)

	result, err := h.webhook.ReplayFailed(c.Request.Context(), limit)
	if err != nil {
		c.JSON(ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// PurgeProcessedEvents deletes processed ledger rows past the retention
// window.
//
// @Router /cron/webhooks/purge [post]
func (h *WebhookHandler) PurgeProcessedEvents(c *gin.Context) {
	h.logger.WithContext(c.Request.Context()).Infow("starting webhook event purge")

	result, err := h.webhook.PurgeProcessed(c.Request.Context())
	if err != nil {
		c.JSON(ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, result)
}
