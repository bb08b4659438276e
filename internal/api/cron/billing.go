package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/service"
)

// BillingHandler exposes the scheduled billing passes as HTTP endpoints.
// They run under an external scheduler hitting the cron routes; the handlers
// themselves hold no timer state, which keeps every pass manually
// triggerable.
type BillingHandler struct {
	sweep   service.SweepService
	dunning service.DunningService
	logger  *logger.Logger
}

func NewBillingHandler(sweep service.SweepService, dunning service.DunningService, logger *logger.Logger) *BillingHandler {
	return &BillingHandler{sweep: sweep, dunning: dunning, logger: logger}
}

// RunSweep walks every live subscription and applies the status transition
// rules.
//
// @Router /cron/billing/sweep [post]
func (h *BillingHandler) RunSweep(c *gin.Context) {
	h.logger.WithContext(c.Request.Context()).Infow("starting subscription sweep")

	result, err := h.sweep.Run(c.Request.Context())
	if err != nil {
		c.JSON(ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunDunning evaluates the notification milestones without touching
// subscription statuses.
//
// @Router /cron/billing/dunning [post]
func (h *BillingHandler) RunDunning(c *gin.Context) {
	h.logger.WithContext(c.Request.Context()).Infow("starting dunning pass")

	result, err := h.dunning.Run(c.Request.Context())
	if err != nil {
		c.JSON(ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, result)
}
