package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/service"
	"github.com/dukastack/billing/internal/testutil"
	"github.com/dukastack/billing/internal/types"
)

type SweepServiceSuite struct {
	testutil.BaseServiceSuite
	sweep service.SweepService
}

func TestSweepService(t *testing.T) {
	suite.Run(t, new(SweepServiceSuite))
}

func (s *SweepServiceSuite) SetupTest() {
	s.BaseServiceSuite.SetupTest()
	params := s.GetServiceParams()
	dunning := service.NewDunningService(params)
	s.sweep = service.NewSweepService(params, dunning)
}

func (s *SweepServiceSuite) TestExpiresLapsedNonRenewing() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: false,
		periodEnd: daysAgo(1),
	})

	result, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.Processed)
	s.Equal(1, result.Expired)
	s.Equal(0, result.PastDue)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusExpired, stored.SubscriptionStatus)
	s.Nil(stored.GracePeriodEndDate)

	emails := s.GetDispatcher().JobsOfKind(types.JobKindEmail)
	s.Len(emails, 1)

	entries := s.GetStores().AuditLogs.ListByAction(auditlog.ActionStatusTransition)
	s.Len(entries, 1)
	s.Equal(string(types.SubscriptionStatusActive), entries[0].OldValue)
	s.Equal(string(types.SubscriptionStatusExpired), entries[0].NewValue)
}

func (s *SweepServiceSuite) TestMarksLapsedRenewingPastDue() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysAgo(1),
	})

	result, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.PastDue)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, stored.SubscriptionStatus)
	s.NotNil(stored.GracePeriodEndDate)

	expectedGraceEnd := time.Now().UTC().AddDate(0, 0, types.DefaultGracePeriodDays)
	s.WithinDuration(expectedGraceEnd, *stored.GracePeriodEndDate, time.Minute)
}

func (s *SweepServiceSuite) TestTrialExpiresWithoutAutoRenew() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusTrial,
		autoRenew: false,
		periodEnd: daysAgo(2),
	})

	result, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.Expired)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusExpired, stored.SubscriptionStatus)
}

func (s *SweepServiceSuite) TestSuspendsAfterGraceLapse() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:             types.SubscriptionStatusPastDue,
		autoRenew:          true,
		periodEnd:          daysAgo(10),
		gracePeriodEndDate: ptrTime(daysAgo(1)),
	})

	result, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.Suspended)
	s.Equal(1, result.SuspensionNotices)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusSuspended, stored.SubscriptionStatus)
	s.Nil(stored.GracePeriodEndDate)
	s.True(stored.SuspensionNoticeSent)
}

func (s *SweepServiceSuite) TestSweepIsIdempotent() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysAgo(1),
	})

	first, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, first.PastDue)
	jobsAfterFirst := len(s.GetDispatcher().Jobs())

	second, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(0, second.PastDue)
	s.Equal(0, second.Expired)
	s.Equal(0, second.Suspended)
	s.Len(s.GetDispatcher().Jobs(), jobsAfterFirst)
}

func (s *SweepServiceSuite) TestHealthySubscriptionUntouched() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysFromNow(20),
	})

	result, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.Processed)
	s.Equal(0, result.Expired+result.PastDue+result.Suspended)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus)
	s.Empty(s.GetDispatcher().Jobs())
}

func (s *SweepServiceSuite) TestKeepsGoingPastBrokenRecords() {
	// Subscription without a shop: notification lookup fails, the error is
	// collected and the rest of the batch still runs.
	seedSubscription(s.GetStores(), "shop_missing", subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysAgo(1),
	})
	sh := seedShop(s.GetStores(), "shop_ok")
	healthy := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: false,
		periodEnd: daysAgo(1),
	})

	result, err := s.sweep.Run(s.GetContext())
	s.NoError(err)
	s.Equal(2, result.Processed)
	s.Len(result.Errors, 1)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), healthy.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusExpired, stored.SubscriptionStatus)
}
