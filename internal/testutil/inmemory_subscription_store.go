package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/dukastack/billing/internal/domain/subscription"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository. The narrow
// update methods merge only their own columns into the stored copy, matching
// the column lists the real repository writes.
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	if sub == nil {
		return nil
	}
	copied := *sub
	copied.GracePeriodEndDate = copyTime(sub.GracePeriodEndDate)
	copied.CancelledAt = copyTime(sub.CancelledAt)
	copied.LastReminderSentAt = copyTime(sub.LastReminderSentAt)
	copied.LastExpiryWarningSentAt = copyTime(sub.LastExpiryWarningSentAt)
	return &copied
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return lo.ToPtr(*t)
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if _, ok := s.FindOne(ctx, func(existing *subscription.Subscription) bool {
		return existing.ShopID == sub.ShopID
	}); ok {
		return ierr.NewError("shop already has a subscription").
			WithReportableDetails(map[string]interface{}{"shop_id": sub.ShopID}).
			Mark(ierr.ErrAlreadyExists)
	}
	return s.InMemoryStore.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) GetByShopID(ctx context.Context, shopID string) (*subscription.Subscription, error) {
	return s.findOne(ctx, func(sub *subscription.Subscription) bool {
		return sub.ShopID == shopID
	}, "shop_id", shopID)
}

func (s *InMemorySubscriptionStore) GetByProviderSubscriptionID(ctx context.Context, providerSubID string) (*subscription.Subscription, error) {
	return s.findOne(ctx, func(sub *subscription.Subscription) bool {
		return sub.ProviderSubscriptionID == providerSubID && providerSubID != ""
	}, "provider_subscription_id", providerSubID)
}

func (s *InMemorySubscriptionStore) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*subscription.Subscription, error) {
	return s.findOne(ctx, func(sub *subscription.Subscription) bool {
		return sub.ProviderCustomerID == providerCustomerID && providerCustomerID != ""
	}, "provider_customer_id", providerCustomerID)
}

func (s *InMemorySubscriptionStore) findOne(ctx context.Context, match func(*subscription.Subscription) bool, key, value string) (*subscription.Subscription, error) {
	sub, ok := s.FindOne(ctx, match)
	if !ok {
		return nil, ierr.NewError("subscription not found").
			WithReportableDetails(map[string]interface{}{key: value}).
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) ListByStatuses(ctx context.Context, statuses []types.SubscriptionStatus) ([]*subscription.Subscription, error) {
	subs := s.List(ctx, func(sub *subscription.Subscription) bool {
		return lo.Contains(statuses, sub.SubscriptionStatus) && sub.Status == types.StatusPublished
	})

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CurrentPeriodEnd.Before(subs[j].CurrentPeriodEnd)
	})
	return lo.Map(subs, func(sub *subscription.Subscription, _ int) *subscription.Subscription {
		return copySubscription(sub)
	}), nil
}

func (s *InMemorySubscriptionStore) UpdateTransitionFields(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	stored, err := s.InMemoryStore.Get(ctx, sub.ID)
	if err != nil {
		return err
	}

	updated := copySubscription(stored)
	updated.SubscriptionStatus = sub.SubscriptionStatus
	updated.GracePeriodEndDate = copyTime(sub.GracePeriodEndDate)
	updated.AutoRenew = sub.AutoRenew
	updated.CurrentPeriodStart = sub.CurrentPeriodStart
	updated.CurrentPeriodEnd = sub.CurrentPeriodEnd
	updated.CancelledAt = copyTime(sub.CancelledAt)
	updated.UpdatedAt = time.Now().UTC()
	updated.UpdatedBy = types.GetUserID(ctx)
	return s.InMemoryStore.Update(ctx, sub.ID, updated)
}

func (s *InMemorySubscriptionStore) UpdateNotificationState(ctx context.Context, sub *subscription.Subscription) error {
	stored, err := s.InMemoryStore.Get(ctx, sub.ID)
	if err != nil {
		return err
	}

	updated := copySubscription(stored)
	updated.LastReminderSentAt = copyTime(sub.LastReminderSentAt)
	updated.SuspensionNoticeSent = sub.SuspensionNoticeSent
	updated.LastExpiryWarningDays = sub.LastExpiryWarningDays
	updated.LastExpiryWarningSentAt = copyTime(sub.LastExpiryWarningSentAt)
	updated.UpdatedAt = time.Now().UTC()
	updated.UpdatedBy = types.GetUserID(ctx)
	return s.InMemoryStore.Update(ctx, sub.ID, updated)
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Update(ctx, sub.ID, copySubscription(sub))
}
