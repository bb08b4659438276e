package subscription

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

// Subscription is the billing record for a single shop. It is created at
// signup, mutated only by the scheduled sweep and by webhook ingestion, and
// retained forever for audit even after it is cancelled or expired.
type Subscription struct {
	ID       string `json:"id" gorm:"primaryKey;column:id"`
	ShopID   string `json:"shop_id" gorm:"column:shop_id;uniqueIndex"`
	PlanCode string `json:"plan_code" gorm:"column:plan_code"`

	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status" gorm:"column:subscription_status;index"`

	CurrentPrice decimal.Decimal `json:"current_price" gorm:"column:current_price;type:numeric(20,8)"`
	Currency     string          `json:"currency" gorm:"column:currency"`
	AutoRenew    bool            `json:"auto_renew" gorm:"column:auto_renew"`

	CurrentPeriodStart time.Time  `json:"current_period_start" gorm:"column:current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end" gorm:"column:current_period_end;index"`
	GracePeriodEndDate *time.Time `json:"grace_period_end_date,omitempty" gorm:"column:grace_period_end_date"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`

	// Provider correlation ids set once the shop is linked to the payment
	// provider. Webhook handlers resolve subscriptions through these.
	ProviderCustomerID     string `json:"provider_customer_id,omitempty" gorm:"column:provider_customer_id;index"`
	ProviderSubscriptionID string `json:"provider_subscription_id,omitempty" gorm:"column:provider_subscription_id;index"`

	// Dunning milestone markers. Typed columns instead of a metadata bag so
	// the once-per-milestone invariants are visible in the schema.
	LastReminderSentAt      *time.Time `json:"last_reminder_sent_at,omitempty" gorm:"column:last_reminder_sent_at"`
	SuspensionNoticeSent    bool       `json:"suspension_notice_sent" gorm:"column:suspension_notice_sent"`
	LastExpiryWarningDays   int        `json:"last_expiry_warning_days,omitempty" gorm:"column:last_expiry_warning_days"`
	LastExpiryWarningSentAt *time.Time `json:"last_expiry_warning_sent_at,omitempty" gorm:"column:last_expiry_warning_sent_at"`

	types.BaseModel
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Validate enforces the structural invariants of a subscription record,
// notably that the grace period window exists exactly while past due.
func (s *Subscription) Validate() error {
	if s.ShopID == "" {
		return ierr.NewError("shop_id is required").Mark(ierr.ErrValidation)
	}
	if s.SubscriptionStatus == "" {
		return ierr.NewError("subscription_status is required").Mark(ierr.ErrValidation)
	}
	if s.SubscriptionStatus == types.SubscriptionStatusPastDue && s.GracePeriodEndDate == nil {
		return ierr.NewError("past_due subscription must have a grace period end date").
			WithReportableDetails(map[string]interface{}{"subscription_id": s.ID}).
			Mark(ierr.ErrValidation)
	}
	if s.SubscriptionStatus != types.SubscriptionStatusPastDue && s.GracePeriodEndDate != nil {
		return ierr.NewError("grace period end date is only valid while past_due").
			WithReportableDetails(map[string]interface{}{"subscription_id": s.ID}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PeriodLapsed reports whether the current billing period has ended.
func (s *Subscription) PeriodLapsed(now time.Time) bool {
	return s.CurrentPeriodEnd.Before(now)
}

// GraceLapsed reports whether the past-due grace window has ended.
func (s *Subscription) GraceLapsed(now time.Time) bool {
	return s.GracePeriodEndDate != nil && s.GracePeriodEndDate.Before(now)
}

// DaysLeft returns whole days until the current period ends, rounded up.
func (s *Subscription) DaysLeft(now time.Time) int {
	return types.DaysUntil(now, s.CurrentPeriodEnd)
}

// DayInGrace returns the 1-based day within the grace period, or 0 when the
// subscription is not past due.
func (s *Subscription) DayInGrace(now time.Time, gracePeriodDays int) int {
	if s.GracePeriodEndDate == nil {
		return 0
	}
	daysUntilSuspension := types.DaysUntil(now, *s.GracePeriodEndDate)
	day := gracePeriodDays - daysUntilSuspension
	if day < 0 {
		return 0
	}
	return day
}
