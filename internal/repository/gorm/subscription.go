package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainSub "github.com/dukastack/billing/internal/domain/subscription"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/postgres"
	"github.com/dukastack/billing/internal/types"
)

type subscriptionRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(client *postgres.Client, logger *logger.Logger) domainSub.Repository {
	return &subscriptionRepository{client: client, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *domainSub.Subscription) error {
	span := StartRepositorySpan(ctx, "subscription", "create", map[string]interface{}{
		"shop_id": sub.ShopID,
	})
	defer FinishSpan(span)

	if err := sub.Validate(); err != nil {
		SetSpanError(span, err)
		return err
	}

	if err := r.client.DB(ctx).Create(sub).Error; err != nil {
		SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("Shop already has a subscription").
				WithReportableDetails(map[string]interface{}{"shop_id": sub.ShopID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*domainSub.Subscription, error) {
	span := StartRepositorySpan(ctx, "subscription", "get", map[string]interface{}{
		"subscription_id": id,
	})
	defer FinishSpan(span)

	var sub domainSub.Subscription
	err := r.client.DB(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		SetSpanError(span, err)
		return nil, r.wrapNotFound(err, "subscription_id", id)
	}

	SetSpanSuccess(span)
	return &sub, nil
}

func (r *subscriptionRepository) GetByShopID(ctx context.Context, shopID string) (*domainSub.Subscription, error) {
	span := StartRepositorySpan(ctx, "subscription", "get_by_shop", map[string]interface{}{
		"shop_id": shopID,
	})
	defer FinishSpan(span)

	var sub domainSub.Subscription
	err := r.client.DB(ctx).Where("shop_id = ?", shopID).First(&sub).Error
	if err != nil {
		SetSpanError(span, err)
		return nil, r.wrapNotFound(err, "shop_id", shopID)
	}

	SetSpanSuccess(span)
	return &sub, nil
}

func (r *subscriptionRepository) GetByProviderSubscriptionID(ctx context.Context, providerSubID string) (*domainSub.Subscription, error) {
	var sub domainSub.Subscription
	err := r.client.DB(ctx).Where("provider_subscription_id = ?", providerSubID).First(&sub).Error
	if err != nil {
		return nil, r.wrapNotFound(err, "provider_subscription_id", providerSubID)
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*domainSub.Subscription, error) {
	var sub domainSub.Subscription
	err := r.client.DB(ctx).Where("provider_customer_id = ?", providerCustomerID).First(&sub).Error
	if err != nil {
		return nil, r.wrapNotFound(err, "provider_customer_id", providerCustomerID)
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByStatuses(ctx context.Context, statuses []types.SubscriptionStatus) ([]*domainSub.Subscription, error) {
	span := StartRepositorySpan(ctx, "subscription", "list_by_statuses", map[string]interface{}{
		"statuses": statuses,
	})
	defer FinishSpan(span)

	var subs []*domainSub.Subscription
	err := r.client.DB(ctx).
		Where("subscription_status IN ?", statuses).
		Where("status = ?", types.StatusPublished).
		Order("current_period_end asc").
		Find(&subs).Error
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return subs, nil
}

// UpdateTransitionFields writes only the state machine columns so the sweep
// never clobbers markers written concurrently by the dunning engine or
// webhook handlers.
func (r *subscriptionRepository) UpdateTransitionFields(ctx context.Context, sub *domainSub.Subscription) error {
	span := StartRepositorySpan(ctx, "subscription", "update_transition", map[string]interface{}{
		"subscription_id": sub.ID,
		"status":          sub.SubscriptionStatus,
	})
	defer FinishSpan(span)

	if err := sub.Validate(); err != nil {
		SetSpanError(span, err)
		return err
	}

	err := r.client.DB(ctx).Model(&domainSub.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"subscription_status":  sub.SubscriptionStatus,
			"grace_period_end_date": sub.GracePeriodEndDate,
			"auto_renew":           sub.AutoRenew,
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancelled_at":         sub.CancelledAt,
			"updated_at":           time.Now().UTC(),
			"updated_by":           types.GetUserID(ctx),
		}).Error
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to update subscription state").
			WithReportableDetails(map[string]interface{}{"subscription_id": sub.ID}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

// UpdateNotificationState writes only the dunning milestone markers.
func (r *subscriptionRepository) UpdateNotificationState(ctx context.Context, sub *domainSub.Subscription) error {
	span := StartRepositorySpan(ctx, "subscription", "update_notification_state", map[string]interface{}{
		"subscription_id": sub.ID,
	})
	defer FinishSpan(span)

	err := r.client.DB(ctx).Model(&domainSub.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"last_reminder_sent_at":       sub.LastReminderSentAt,
			"suspension_notice_sent":      sub.SuspensionNoticeSent,
			"last_expiry_warning_days":    sub.LastExpiryWarningDays,
			"last_expiry_warning_sent_at": sub.LastExpiryWarningSentAt,
			"updated_at":                  time.Now().UTC(),
			"updated_by":                  types.GetUserID(ctx),
		}).Error
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to update notification state").
			WithReportableDetails(map[string]interface{}{"subscription_id": sub.ID}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *domainSub.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	sub.UpdatedAt = time.Now().UTC()
	sub.UpdatedBy = types.GetUserID(ctx)

	if err := r.client.DB(ctx).Save(sub).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			WithReportableDetails(map[string]interface{}{"subscription_id": sub.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) wrapNotFound(err error, key, value string) error {
	if ierr.Is(err, gorm.ErrRecordNotFound) {
		return ierr.WithError(err).
			WithHint("Subscription not found").
			WithReportableDetails(map[string]interface{}{key: value}).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithHint("Failed to get subscription").
		Mark(ierr.ErrDatabase)
}
