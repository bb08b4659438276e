package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dukastack/billing/internal/domain/payment"
	ierr "github.com/dukastack/billing/internal/errors"
)

// InMemoryPaymentStore implements payment.Repository. Payments are keyed by
// provider payment id and refunds by provider refund id, matching the unique
// indexes the real repository relies on.
type InMemoryPaymentStore struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment
	refunds  map[string]*payment.Refund
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		payments: make(map[string]*payment.Payment),
		refunds:  make(map[string]*payment.Refund),
	}
}

func copyPayment(p *payment.Payment) *payment.Payment {
	if p == nil {
		return nil
	}
	copied := *p
	copied.PaidAt = copyTime(p.PaidAt)
	return &copied
}

func (s *InMemoryPaymentStore) Upsert(ctx context.Context, p *payment.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.payments[p.ProviderPaymentID]; ok {
		updated := copyPayment(p)
		updated.ID = existing.ID
		updated.RefundedAmount = existing.RefundedAmount
		s.payments[p.ProviderPaymentID] = updated
		return nil
	}
	s.payments[p.ProviderPaymentID] = copyPayment(p)
	return nil
}

func (s *InMemoryPaymentStore) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[providerPaymentID]
	if !ok {
		return nil, ierr.NewError("payment not found").
			WithReportableDetails(map[string]interface{}{"provider_payment_id": providerPaymentID}).
			Mark(ierr.ErrNotFound)
	}
	return copyPayment(p), nil
}

func (s *InMemoryPaymentStore) RecordRefund(ctx context.Context, providerPaymentID, providerRefundID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[providerPaymentID]
	if !ok {
		return ierr.NewError("payment not found").
			WithReportableDetails(map[string]interface{}{"provider_payment_id": providerPaymentID}).
			Mark(ierr.ErrNotFound)
	}
	if _, seen := s.refunds[providerRefundID]; seen {
		return ierr.NewError("refund already recorded").
			WithReportableDetails(map[string]interface{}{"provider_refund_id": providerRefundID}).
			Mark(ierr.ErrAlreadyExists)
	}

	s.refunds[providerRefundID] = &payment.Refund{
		PaymentID:        p.ID,
		ProviderRefundID: providerRefundID,
		Amount:           amount,
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	return nil
}

func (s *InMemoryPaymentStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *InMemoryPaymentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = make(map[string]*payment.Payment)
	s.refunds = make(map[string]*payment.Refund)
}
