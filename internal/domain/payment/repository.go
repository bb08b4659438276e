package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for payment persistence operations.
type Repository interface {
	// Upsert creates the payment or overwrites its mutable fields when a
	// row for the same provider payment id already exists. RefundedAmount
	// is left untouched on conflict.
	Upsert(ctx context.Context, p *Payment) error

	// GetByProviderPaymentID retrieves a payment by provider payment id.
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Payment, error)

	// RecordRefund atomically increments the payment's refunded amount,
	// keyed by the provider refund id. A refund id seen before is a no-op
	// returning ErrAlreadyExists.
	RecordRefund(ctx context.Context, providerPaymentID, providerRefundID string, amount decimal.Decimal) error
}
