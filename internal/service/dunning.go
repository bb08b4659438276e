package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/dukastack/billing/internal/api/dto"
	"github.com/dukastack/billing/internal/dispatch"
	"github.com/dukastack/billing/internal/domain/shop"
	"github.com/dukastack/billing/internal/domain/subscription"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/notification"
	"github.com/dukastack/billing/internal/types"
)

// DunningService sends the escalating payment notifications: pre-expiry
// warnings while a renewing subscription approaches its period end, payment
// reminders while it sits in the grace window, a single suspension notice,
// and the reactivation confirmation.
//
// Every send is gated on a persisted marker so re-running a pass on the same
// day is a no-op. Markers are written only after a successful send; a failed
// send is retried on the next pass.
type DunningService interface {
	// Run evaluates every subscription in the dunning funnel plus the
	// renewing ones approaching expiry.
	Run(ctx context.Context) (*dto.DunningResult, error)

	// Evaluate runs the dunning rules for a single subscription.
	Evaluate(ctx context.Context, sub *subscription.Subscription, now time.Time) (*dto.DunningResult, error)

	// NotifyStatusChange sends the one-shot notification tied to a status
	// transition the sweep just performed.
	NotifyStatusChange(ctx context.Context, sub *subscription.Subscription) error

	// NotifyReactivated sends the welcome-back confirmation.
	NotifyReactivated(ctx context.Context, sub *subscription.Subscription) error
}

type dunningService struct {
	ServiceParams
}

func NewDunningService(params ServiceParams) DunningService {
	return &dunningService{ServiceParams: params}
}

func (s *dunningService) Run(ctx context.Context) (*dto.DunningResult, error) {
	now := time.Now().UTC()
	result := &dto.DunningResult{}

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
		result.Evaluated++
		partial, err := s.Evaluate(ctx, sub, now)
		if err != nil {
			s.Logger.Errorw("dunning evaluation failed",
				"subscription_id", sub.ID,
				"shop_id", sub.ShopID,
				"error", err)
			result.Errors = append(result.Errors, dto.SweepItemError{
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				Error:          err.Error(),
			})
			continue
		}
		result.WarningsSent += partial.WarningsSent
		result.RemindersSent += partial.RemindersSent
		result.SuspensionNotices += partial.SuspensionNotices
	}

	s.Logger.Infow("dunning pass complete",
		"evaluated", result.Evaluated,
		"warnings_sent", result.WarningsSent,
		"reminders_sent", result.RemindersSent,
		"suspension_notices", result.SuspensionNotices,
		"errors", len(result.Errors))
	return result, nil
}

func (s *dunningService) Evaluate(ctx context.Context, sub *subscription.Subscription, now time.Time) (*dto.DunningResult, error) {
	result := &dto.DunningResult{}

	switch {
	case sub.SubscriptionStatus.IsBillable():
		if !sub.AutoRenew {
			return result, nil
		}
		daysLeft := sub.DaysLeft(now)
		if !lo.Contains(types.ExpiryWarningDays, daysLeft) {
			return result, nil
		}
		if sub.LastExpiryWarningDays == daysLeft &&
			sub.LastExpiryWarningSentAt != nil &&
			types.SameDay(*sub.LastExpiryWarningSentAt, now) {
			return result, nil
		}
		if err := s.notify(ctx, sub, notification.TemplateExpiryWarning,
			fmt.Sprintf("%s:%s:%d", notification.TemplateExpiryWarning, sub.ID, daysLeft), false); err != nil {
			return result, err
		}
		sub.LastExpiryWarningDays = daysLeft
		sub.LastExpiryWarningSentAt = lo.ToPtr(now)
		if err := s.SubscriptionRepo.UpdateNotificationState(ctx, sub); err != nil {
			return result, err
		}
		result.WarningsSent++

	case sub.SubscriptionStatus == types.SubscriptionStatusPastDue:
		day := sub.DayInGrace(now, s.gracePeriodDays())
		if !lo.Contains(types.GraceReminderDays, day) {
			return result, nil
		}
		if sub.LastReminderSentAt != nil && types.SameDay(*sub.LastReminderSentAt, now) {
			return result, nil
		}
		if err := s.notify(ctx, sub, notification.TemplateGraceReminder,
			fmt.Sprintf("%s:%s:%d", notification.TemplateGraceReminder, sub.ID, day), true); err != nil {
			return result, err
		}
		sub.LastReminderSentAt = lo.ToPtr(now)
		if err := s.SubscriptionRepo.UpdateNotificationState(ctx, sub); err != nil {
			return result, err
		}
		result.RemindersSent++

	case sub.SubscriptionStatus == types.SubscriptionStatusSuspended:
		if sub.SuspensionNoticeSent {
			return result, nil
		}
		if err := s.notify(ctx, sub, notification.TemplateSuspended,
			fmt.Sprintf("%s:%s", notification.TemplateSuspended, sub.ID), true); err != nil {
			return result, err
		}
		sub.SuspensionNoticeSent = true
		if err := s.SubscriptionRepo.UpdateNotificationState(ctx, sub); err != nil {
			return result, err
		}
		result.SuspensionNotices++
	}

	return result, nil
}

func (s *dunningService) NotifyStatusChange(ctx context.Context, sub *subscription.Subscription) error {
	switch sub.SubscriptionStatus {
	case types.SubscriptionStatusPastDue:
		return s.notify(ctx, sub, notification.TemplatePastDue,
			fmt.Sprintf("%s:%s:%s", notification.TemplatePastDue, sub.ID, sub.CurrentPeriodEnd.Format("2006-01-02")), true)
	case types.SubscriptionStatusExpired:
		return s.notify(ctx, sub, notification.TemplateExpired,
			fmt.Sprintf("%s:%s:%s", notification.TemplateExpired, sub.ID, sub.CurrentPeriodEnd.Format("2006-01-02")), false)
	default:
		return nil
	}
}

func (s *dunningService) NotifyReactivated(ctx context.Context, sub *subscription.Subscription) error {
	return s.notify(ctx, sub, notification.TemplateReactivated,
		fmt.Sprintf("%s:%s:%d", notification.TemplateReactivated, sub.ID, time.Now().UTC().Unix()), false)
}

// notify renders the template and hands the resulting email, in-app
// notification and optional SMS to the dispatcher. When the broker is
// unavailable the email is sent inline so the customer is still told; the
// in-app and SMS channels are best effort and never fail the caller.
func (s *dunningService) notify(ctx context.Context, sub *subscription.Subscription, template, dedupeKey string, withSMS bool) error {
	owner, err := s.ShopRepo.Get(ctx, sub.ShopID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	subject, html, err := s.Renderer.Render(ctx, template, s.templateVariables(sub, owner, now))
	if err != nil {
		return err
	}

	if err := s.deliverEmail(ctx, owner.OwnerEmail, subject, html, dedupeKey); err != nil {
		return err
	}
	s.deliverInApp(ctx, sub.ShopID, subject, html, dedupeKey)
	if withSMS && owner.OwnerPhone != "" {
		s.deliverSMS(ctx, owner.OwnerPhone, subject, dedupeKey)
	}

	s.Logger.Infow("dunning notification delivered",
		"subscription_id", sub.ID,
		"shop_id", sub.ShopID,
		"template", template)
	return nil
}

func (s *dunningService) deliverEmail(ctx context.Context, to, subject, html, dedupeKey string) error {
	job, err := dispatch.NewJob(types.JobKindEmail, dispatch.EmailJobPayload{
		To:      to,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return err
	}

	_, err = s.Dispatcher.Submit(ctx, job.WithDedupeKey(dedupeKey+":email"))
	if err == nil {
		return nil
	}
	if !ierr.Is(err, dispatch.ErrUnavailable) {
		return err
	}

	// Inline fallback keeps dunning working without a broker.
	result, err := s.EmailSender.SendEmail(ctx, to, subject, html)
	if err != nil {
		return err
	}
	if !result.Success {
		s.Logger.Warnw("inline email skipped", "to", to, "reason", result.Error)
	}
	return nil
}

func (s *dunningService) deliverInApp(ctx context.Context, shopID, title, body, dedupeKey string) {
	job, err := dispatch.NewJob(types.JobKindNotification, dispatch.NotificationJobPayload{
		ShopID: shopID,
		Title:  title,
		Body:   body,
	})
	if err != nil {
		s.Logger.Errorw("failed to build notification job", "shop_id", shopID, "error", err)
		return
	}
	if _, err := s.Dispatcher.Submit(ctx, job.WithDedupeKey(dedupeKey+":notification")); err != nil &&
		!ierr.Is(err, dispatch.ErrUnavailable) {
		s.Logger.Errorw("failed to dispatch notification job", "shop_id", shopID, "error", err)
	}
}

func (s *dunningService) deliverSMS(ctx context.Context, to, text, dedupeKey string) {
	job, err := dispatch.NewJob(types.JobKindMessage, dispatch.MessageJobPayload{To: to, Text: text})
	if err != nil {
		s.Logger.Errorw("failed to build message job", "error", err)
		return
	}

	_, err = s.Dispatcher.Submit(ctx, job.WithDedupeKey(dedupeKey+":message"))
	if err == nil {
		return
	}
	if !ierr.Is(err, dispatch.ErrUnavailable) {
		s.Logger.Errorw("failed to dispatch message job", "error", err)
		return
	}
	if _, err := s.MessageSender.SendMessage(ctx, to, text); err != nil {
		s.Logger.Errorw("inline message send failed", "error", err)
	}
}

func (s *dunningService) templateVariables(sub *subscription.Subscription, owner *shop.Shop, now time.Time) map[string]string {
	vars := map[string]string{
		"owner_name": owner.OwnerName,
		"shop_name":  owner.Name,
		"plan_name":  sub.PlanCode,
		"days_left":  strconv.Itoa(sub.DaysLeft(now)),
		"period_end": sub.CurrentPeriodEnd.Format("January 2, 2006"),
		"amount":     sub.CurrentPrice.StringFixed(2) + " " + sub.Currency,
	}
	if sub.GracePeriodEndDate != nil {
		vars["grace_end"] = sub.GracePeriodEndDate.Format("January 2, 2006")
		vars["days_until_suspension"] = strconv.Itoa(types.DaysUntil(now, *sub.GracePeriodEndDate))
	}
	return vars
}

func (s *dunningService) gracePeriodDays() int {
	if s.Config != nil && s.Config.Billing.GracePeriodDays > 0 {
		return s.Config.Billing.GracePeriodDays
	}
	return types.DefaultGracePeriodDays
}
