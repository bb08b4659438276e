package gorm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainPayment "github.com/dukastack/billing/internal/domain/payment"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/postgres"
	"github.com/dukastack/billing/internal/types"
)

type paymentRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(client *postgres.Client, logger *logger.Logger) domainPayment.Repository {
	return &paymentRepository{client: client, logger: logger}
}

// Upsert overwrites the payload-derived fields on conflict so a redelivered
// event converges to the same row. refunded_amount is excluded: it is only
// moved by RecordRefund.
func (r *paymentRepository) Upsert(ctx context.Context, p *domainPayment.Payment) error {
	span := StartRepositorySpan(ctx, "payment", "upsert", map[string]interface{}{
		"provider_payment_id": p.ProviderPaymentID,
	})
	defer FinishSpan(span)

	if err := p.Validate(); err != nil {
		SetSpanError(span, err)
		return err
	}

	err := r.client.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"payment_status", "amount", "currency", "paid_at",
			"failure_reason", "updated_at", "updated_by",
		}),
	}).Create(p).Error
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to upsert payment").
			WithReportableDetails(map[string]interface{}{
				"provider_payment_id": p.ProviderPaymentID,
			}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *paymentRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domainPayment.Payment, error) {
	var p domainPayment.Payment
	err := r.client.DB(ctx).Where("provider_payment_id = ?", providerPaymentID).First(&p).Error
	if err != nil {
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("Payment not found").
				WithReportableDetails(map[string]interface{}{
					"provider_payment_id": providerPaymentID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

// RecordRefund ledgers the refund id first; the unique index rejects a
// replayed refund before the amount is incremented, so the running total
// can never double count.
func (r *paymentRepository) RecordRefund(ctx context.Context, providerPaymentID, providerRefundID string, amount decimal.Decimal) error {
	span := StartRepositorySpan(ctx, "payment", "record_refund", map[string]interface{}{
		"provider_payment_id": providerPaymentID,
		"provider_refund_id":  providerRefundID,
	})
	defer FinishSpan(span)

	p, err := r.GetByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		SetSpanError(span, err)
		return err
	}

	err = r.client.DB(ctx).Transaction(func(tx *gorm.DB) error {
		refund := &domainPayment.Refund{
			ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REFUND),
			PaymentID:        p.ID,
			ProviderRefundID: providerRefundID,
			Amount:           amount,
			CreatedAt:        time.Now().UTC(),
		}
		if err := tx.Create(refund).Error; err != nil {
			if ierr.Is(err, gorm.ErrDuplicatedKey) {
				return ierr.WithError(err).
					WithHint("Refund already recorded").
					WithReportableDetails(map[string]interface{}{
						"provider_refund_id": providerRefundID,
					}).
					Mark(ierr.ErrAlreadyExists)
			}
			return err
		}

		return tx.Model(&domainPayment.Payment{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"refunded_amount": gorm.Expr("refunded_amount + ?", amount),
				"updated_at":      time.Now().UTC(),
				"updated_by":      types.GetUserID(ctx),
			}).Error
	})
	if err != nil {
		SetSpanError(span, err)
		if ierr.IsAlreadyExists(err) {
			return err
		}
		return ierr.WithError(err).
			WithHint("Failed to record refund").
			WithReportableDetails(map[string]interface{}{
				"provider_payment_id": providerPaymentID,
				"provider_refund_id":  providerRefundID,
			}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}
