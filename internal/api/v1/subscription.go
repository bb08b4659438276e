package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukastack/billing/internal/api/dto"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/service"
)

type SubscriptionHandler struct {
	service service.SubscriptionService
	logger  *logger.Logger
}

func NewSubscriptionHandler(service service.SubscriptionService, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, logger: logger}
}

// @Router /v1/subscriptions [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Invalid request body").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Router /v1/subscriptions/{id} [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	resp, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Router /v1/shops/{shop_id}/subscription [get]
func (h *SubscriptionHandler) GetShopSubscription(c *gin.Context) {
	resp, err := h.service.GetByShopID(c.Request.Context(), c.Param("shop_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Router /v1/subscriptions/{id}/reactivate [post]
func (h *SubscriptionHandler) ReactivateSubscription(c *gin.Context) {
	var req dto.ReactivateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Invalid request body").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Reactivate(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Router /v1/subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	var req dto.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Invalid request body").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Cancel(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func respondError(c *gin.Context, err error) {
	c.JSON(ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err))
}
