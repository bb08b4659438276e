package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukastack/billing/internal/domain/subscription"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
	"github.com/dukastack/billing/internal/validator"
)

// CreateSubscriptionRequest provisions the billing record for a shop at
// signup.
type CreateSubscriptionRequest struct {
	ShopID     string          `json:"shop_id" validate:"required"`
	PlanCode   string          `json:"plan_code" validate:"required"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency" validate:"required,len=3"`
	AutoRenew  bool            `json:"auto_renew"`
	TrialDays  int             `json:"trial_days" validate:"gte=0"`
	PeriodDays int             `json:"period_days" validate:"required,gt=0"`

	ProviderCustomerID     string `json:"provider_customer_id"`
	ProviderSubscriptionID string `json:"provider_subscription_id"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Price.IsNegative() {
		return ierr.NewError("price cannot be negative").
			WithReportableDetails(map[string]interface{}{"price": r.Price.String()}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToSubscription builds the domain record. A trial window takes precedence
// over the paid period for the first cycle.
func (r *CreateSubscriptionRequest) ToSubscription() *subscription.Subscription {
	now := time.Now().UTC()
	status := types.SubscriptionStatusActive
	periodEnd := now.AddDate(0, 0, r.PeriodDays)
	if r.TrialDays > 0 {
		status = types.SubscriptionStatusTrial
		periodEnd = now.AddDate(0, 0, r.TrialDays)
	}

	return &subscription.Subscription{
		ID:                     types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		ShopID:                 r.ShopID,
		PlanCode:               r.PlanCode,
		SubscriptionStatus:     status,
		CurrentPrice:           r.Price,
		Currency:               r.Currency,
		AutoRenew:              r.AutoRenew,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       periodEnd,
		ProviderCustomerID:     r.ProviderCustomerID,
		ProviderSubscriptionID: r.ProviderSubscriptionID,
	}
}

// ReactivateSubscriptionRequest restores a delinquent subscription after an
// out-of-band payment resolution.
type ReactivateSubscriptionRequest struct {
	Reason     string `json:"reason" validate:"required"`
	PeriodDays int    `json:"period_days" validate:"gte=0"`
}

func (r *ReactivateSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// CancelSubscriptionRequest cancels a subscription by operator action.
type CancelSubscriptionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (r *CancelSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// SubscriptionResponse is the external view of a subscription.
type SubscriptionResponse struct {
	*subscription.Subscription
}
