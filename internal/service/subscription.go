package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dukastack/billing/internal/api/dto"
	"github.com/dukastack/billing/internal/cache"
	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/domain/subscription"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

// SubscriptionService is the admin surface over subscriptions: signup
// provisioning, reads, operator reactivation and cancellation. Scheduled
// transitions stay with the sweep; webhook-driven mutations stay with the
// webhook service.
type SubscriptionService interface {
	Create(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	Get(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	GetByShopID(ctx context.Context, shopID string) (*dto.SubscriptionResponse, error)
	Reactivate(ctx context.Context, id string, req *dto.ReactivateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	Cancel(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	ServiceParams
	dunning DunningService
}

func NewSubscriptionService(params ServiceParams, dunning DunningService) SubscriptionService {
	return &subscriptionService{ServiceParams: params, dunning: dunning}
}

func (s *subscriptionService) Create(ctx context.Context, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.ShopRepo.Get(ctx, req.ShopID); err != nil {
		return nil, err
	}

	existing, err := s.SubscriptionRepo.GetByShopID(ctx, req.ShopID)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, ierr.NewError("shop already has a subscription").
			WithHint("A shop can hold only one subscription").
			WithReportableDetails(map[string]interface{}{
				"shop_id":         req.ShopID,
				"subscription_id": existing.ID,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	sub := req.ToSubscription()
	sub.BaseModel = types.GetDefaultBaseModel(ctx)
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.SubscriptionRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription created",
		"subscription_id", sub.ID,
		"shop_id", sub.ShopID,
		"plan_code", sub.PlanCode,
		"subscription_status", sub.SubscriptionStatus)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) Get(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	cacheKey := subscriptionCacheKey(id)
	if cached, ok := s.Cache.Get(ctx, cacheKey); ok {
		if sub, ok := cache.UnmarshalValue[subscription.Subscription](cached); ok {
			return &dto.SubscriptionResponse{Subscription: sub}, nil
		}
	}

	sub, err := s.SubscriptionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, cacheKey, sub, cache.ExpiryDefaultInMemory)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) GetByShopID(ctx context.Context, shopID string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubscriptionRepo.GetByShopID(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) Reactivate(ctx context.Context, id string, req *dto.ReactivateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubscriptionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sub.SubscriptionStatus.IsDelinquent() {
		return nil, ierr.NewError("subscription is not delinquent").
			WithHint("Only past_due, suspended or expired subscriptions can be reactivated").
			WithReportableDetails(map[string]interface{}{
				"subscription_id":     sub.ID,
				"subscription_status": sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrValidation)
	}

	now := time.Now().UTC()
	from := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.GracePeriodEndDate = nil
	if req.PeriodDays > 0 {
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = now.AddDate(0, 0, req.PeriodDays)
	}
	if err := s.SubscriptionRepo.UpdateTransitionFields(ctx, sub); err != nil {
		return nil, err
	}

	// Reset the dunning markers so the next delinquency notifies afresh.
	sub.SuspensionNoticeSent = false
	sub.LastReminderSentAt = nil
	sub.LastExpiryWarningDays = 0
	sub.LastExpiryWarningSentAt = nil
	if err := s.SubscriptionRepo.UpdateNotificationState(ctx, sub); err != nil {
		return nil, err
	}

	s.Cache.Delete(ctx, subscriptionCacheKey(sub.ID))
	s.audit(ctx, sub.ShopID, auditlog.ActionReactivation, string(from), string(sub.SubscriptionStatus), req.Reason)

	if err := s.dunning.NotifyReactivated(ctx, sub); err != nil {
		s.Logger.Errorw("failed to send reactivation confirmation",
			"subscription_id", sub.ID,
			"error", err)
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, id string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubscriptionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.SubscriptionStatus == types.SubscriptionStatusCancelled {
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	now := time.Now().UTC()
	from := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.GracePeriodEndDate = nil
	sub.CancelledAt = &now
	sub.AutoRenew = false
	if err := s.SubscriptionRepo.UpdateTransitionFields(ctx, sub); err != nil {
		return nil, err
	}

	s.Cache.Delete(ctx, subscriptionCacheKey(sub.ID))
	s.audit(ctx, sub.ShopID, auditlog.ActionCancellation, string(from), string(sub.SubscriptionStatus), req.Reason)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) audit(ctx context.Context, shopID, action, oldValue, newValue, reason string) {
	entry := &auditlog.Entry{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_LOG),
		ShopID:      shopID,
		PerformedBy: types.GetUserID(ctx),
		Action:      action,
		OldValue:    oldValue,
		NewValue:    newValue,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.AuditRepo.Create(ctx, entry); err != nil {
		s.Logger.Errorw("failed to write audit entry",
			"shop_id", shopID,
			"action", action,
			"error", err)
	}
}

func subscriptionCacheKey(id string) string {
	return fmt.Sprintf("subscription:%s", id)
}
