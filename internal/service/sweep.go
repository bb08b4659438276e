package service

import (
	"context"
	"time"

	"github.com/dukastack/billing/internal/api/dto"
	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/domain/subscription"
	"github.com/dukastack/billing/internal/types"
)

// SweepService is the scheduled status sweep. One pass walks every live
// subscription and applies the transition rules in order:
//
//  1. billable, period lapsed, auto-renew off  -> expired
//  2. billable, period lapsed, auto-renew on   -> past_due, grace window opens
//  3. past_due, grace window lapsed            -> suspended
//  4. everything else is re-evaluated by the dunning engine
//
// Rules are derived from persisted state alone, so running the sweep twice
// in a row produces no second transition and no second notification.
type SweepService interface {
	Run(ctx context.Context) (*dto.SweepResult, error)
}

type sweepService struct {
	ServiceParams
	dunning DunningService
}

func NewSweepService(params ServiceParams, dunning DunningService) SweepService {
	return &sweepService{ServiceParams: params, dunning: dunning}
}

func (s *sweepService) Run(ctx context.Context) (*dto.SweepResult, error) {
	now := time.Now().UTC()
	result := &dto.SweepResult{}

	subs, err := s.SubscriptionRepo.ListByStatuses(ctx, []types.SubscriptionStatus{
		types.SubscriptionStatusTrial,
		types.SubscriptionStatusActive,
		types.SubscriptionStatusPastDue,
		types.SubscriptionStatusSuspended,
	})
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		result.Processed++
		if err := s.process(ctx, sub, now, result); err != nil {
			s.Logger.Errorw("sweep failed for subscription",
				"subscription_id", sub.ID,
				"shop_id", sub.ShopID,
				"error", err)
			result.Errors = append(result.Errors, dto.SweepItemError{
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				Error:          err.Error(),
			})
		}
	}

	s.Logger.Infow("sweep complete",
		"processed", result.Processed,
		"expired", result.Expired,
		"past_due", result.PastDue,
		"suspended", result.Suspended,
		"warnings_sent", result.WarningsSent,
		"reminders_sent", result.RemindersSent,
		"suspension_notices", result.SuspensionNotices,
		"errors", len(result.Errors))
	return result, nil
}

func (s *sweepService) process(ctx context.Context, sub *subscription.Subscription, now time.Time, result *dto.SweepResult) error {
	switch {
	case sub.SubscriptionStatus.IsBillable() && sub.PeriodLapsed(now) && !sub.AutoRenew:
		sub.GracePeriodEndDate = nil
		if err := s.transition(ctx, sub, types.SubscriptionStatusExpired, "billing period ended with auto-renew off"); err != nil {
			return err
		}
		result.Expired++
		if err := s.dunning.NotifyStatusChange(ctx, sub); err != nil {
			return err
		}
		return nil

	case sub.SubscriptionStatus.IsBillable() && sub.PeriodLapsed(now) && sub.AutoRenew:
		graceEnd := now.AddDate(0, 0, s.gracePeriodDays())
		sub.GracePeriodEndDate = &graceEnd
		if err := s.transition(ctx, sub, types.SubscriptionStatusPastDue, "renewal payment not received by period end"); err != nil {
			return err
		}
		result.PastDue++
		if err := s.dunning.NotifyStatusChange(ctx, sub); err != nil {
			return err
		}
		return nil

	case sub.SubscriptionStatus == types.SubscriptionStatusPastDue && sub.GraceLapsed(now):
		sub.GracePeriodEndDate = nil
		if err := s.transition(ctx, sub, types.SubscriptionStatusSuspended, "grace period ended without payment"); err != nil {
			return err
		}
		result.Suspended++
		// The suspension notice goes through the dunning evaluation below so
		// its once-only marker is honored.
	}

	partial, err := s.dunning.Evaluate(ctx, sub, now)
	if err != nil {
		return err
	}
	result.WarningsSent += partial.WarningsSent
	result.RemindersSent += partial.RemindersSent
	result.SuspensionNotices += partial.SuspensionNotices
	return nil
}

func (s *sweepService) transition(ctx context.Context, sub *subscription.Subscription, to types.SubscriptionStatus, reason string) error {
	from := sub.SubscriptionStatus
	sub.SubscriptionStatus = to
	if err := s.SubscriptionRepo.UpdateTransitionFields(ctx, sub); err != nil {
		sub.SubscriptionStatus = from
		return err
	}

	s.Logger.Infow("subscription status transition",
		"subscription_id", sub.ID,
		"shop_id", sub.ShopID,
		"from", from,
		"to", to)

	entry := &auditlog.Entry{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_LOG),
		ShopID:      sub.ShopID,
		PerformedBy: types.GetUserID(ctx),
		Action:      auditlog.ActionStatusTransition,
		OldValue:    string(from),
		NewValue:    string(to),
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.AuditRepo.Create(ctx, entry); err != nil {
		// The transition already happened; a lost audit row is logged, not
		// rolled back.
		s.Logger.Errorw("failed to write audit entry",
			"subscription_id", sub.ID,
			"action", entry.Action,
			"error", err)
	}
	return nil
}

func (s *sweepService) gracePeriodDays() int {
	if s.Config != nil && s.Config.Billing.GracePeriodDays > 0 {
		return s.Config.Billing.GracePeriodDays
	}
	return types.DefaultGracePeriodDays
}
