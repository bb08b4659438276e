package payment

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment mirrors one provider payment. Webhook handlers overwrite fields
// from the event payload so re-running a handler is safe.
type Payment struct {
	ID                string `json:"id" gorm:"primaryKey;column:id"`
	ShopID            string `json:"shop_id" gorm:"column:shop_id;index"`
	SubscriptionID    string `json:"subscription_id" gorm:"column:subscription_id;index"`
	ProviderPaymentID string `json:"provider_payment_id" gorm:"column:provider_payment_id;uniqueIndex"`

	PaymentStatus PaymentStatus   `json:"payment_status" gorm:"column:payment_status"`
	Amount        decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,8)"`
	Currency      string          `json:"currency" gorm:"column:currency"`

	// RefundedAmount is a running total incremented atomically per refund
	// id; it is the one field that is not overwritten from payloads.
	RefundedAmount decimal.Decimal `json:"refunded_amount" gorm:"column:refunded_amount;type:numeric(20,8)"`

	PaidAt        *time.Time `json:"paid_at,omitempty" gorm:"column:paid_at"`
	FailureReason string     `json:"failure_reason,omitempty" gorm:"column:failure_reason"`

	types.BaseModel
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) Validate() error {
	if p.ProviderPaymentID == "" {
		return ierr.NewError("provider_payment_id is required").Mark(ierr.ErrValidation)
	}
	if p.ShopID == "" {
		return ierr.NewError("shop_id is required").Mark(ierr.ErrValidation)
	}
	return nil
}

// Refund is the per-refund ledger row. The unique ProviderRefundID prevents
// a redelivered refund event from double counting into RefundedAmount.
type Refund struct {
	ID               string          `json:"id" gorm:"primaryKey;column:id"`
	PaymentID        string          `json:"payment_id" gorm:"column:payment_id;index"`
	ProviderRefundID string          `json:"provider_refund_id" gorm:"column:provider_refund_id;uniqueIndex"`
	Amount           decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,8)"`
	CreatedAt        time.Time       `json:"created_at" gorm:"column:created_at"`
}

func (Refund) TableName() string {
	return "payment_refunds"
}
