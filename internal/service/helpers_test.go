package service_test

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukastack/billing/internal/domain/shop"
	"github.com/dukastack/billing/internal/domain/subscription"
	"github.com/dukastack/billing/internal/testutil"
	"github.com/dukastack/billing/internal/types"
)

// subscriptionFixture tweaks the default test subscription.
type subscriptionFixture struct {
	status             types.SubscriptionStatus
	autoRenew          bool
	periodEnd          time.Time
	gracePeriodEndDate *time.Time
	providerCustomerID string
	providerSubID      string
}

func seedShop(stores testutil.Stores, id string) *shop.Shop {
	sh := &shop.Shop{
		ID:         id,
		Name:       "Corner Books",
		OwnerName:  "Amina",
		OwnerEmail: "amina@cornerbooks.test",
		OwnerPhone: "+254700000001",
		BaseModel:  types.BaseModel{Status: types.StatusPublished},
	}
	if err := stores.Shops.Create(context.Background(), sh); err != nil {
		panic(err)
	}
	return sh
}

func seedSubscription(stores testutil.Stores, shopID string, fx subscriptionFixture) *subscription.Subscription {
	now := time.Now().UTC()
	periodEnd := fx.periodEnd
	if periodEnd.IsZero() {
		periodEnd = now.AddDate(0, 0, 30)
	}

	sub := &subscription.Subscription{
		ID:                     types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		ShopID:                 shopID,
		PlanCode:               "standard",
		SubscriptionStatus:     fx.status,
		CurrentPrice:           decimal.NewFromInt(2500),
		Currency:               "KES",
		AutoRenew:              fx.autoRenew,
		CurrentPeriodStart:     periodEnd.AddDate(0, 0, -30),
		CurrentPeriodEnd:       periodEnd,
		GracePeriodEndDate:     fx.gracePeriodEndDate,
		ProviderCustomerID:     fx.providerCustomerID,
		ProviderSubscriptionID: fx.providerSubID,
		BaseModel:              types.BaseModel{Status: types.StatusPublished},
	}
	if err := stores.Subscriptions.Create(context.Background(), sub); err != nil {
		panic(err)
	}
	return sub
}

// daysFromNow returns a timestamp that DaysUntil counts as exactly n whole
// days away.
func daysFromNow(n int) time.Time {
	return time.Now().UTC().Add(time.Duration(n)*24*time.Hour - time.Hour)
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
