package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/dukastack/billing/internal/service"
	"github.com/dukastack/billing/internal/testutil"
	"github.com/dukastack/billing/internal/types"
)

type DunningServiceSuite struct {
	testutil.BaseServiceSuite
	dunning service.DunningService
}

func TestDunningService(t *testing.T) {
	suite.Run(t, new(DunningServiceSuite))
}

func (s *DunningServiceSuite) SetupTest() {
	s.BaseServiceSuite.SetupTest()
	s.dunning = service.NewDunningService(s.GetServiceParams())
}

func (s *DunningServiceSuite) TestExpiryWarningAtMilestone() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysFromNow(7),
	})

	result, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.WarningsSent)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(7, stored.LastExpiryWarningDays)
	s.NotNil(stored.LastExpiryWarningSentAt)

	emails := s.GetDispatcher().JobsOfKind(types.JobKindEmail)
	s.Len(emails, 1)
}

func (s *DunningServiceSuite) TestExpiryWarningNotRepeatedSameDay() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysFromNow(3),
	})

	first, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, first.WarningsSent)

	second, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(0, second.WarningsSent)
	s.Len(s.GetDispatcher().JobsOfKind(types.JobKindEmail), 1)
}

func (s *DunningServiceSuite) TestNoWarningOffMilestone() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysFromNow(5),
	})

	result, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(0, result.WarningsSent)
}

func (s *DunningServiceSuite) TestNoWarningWithoutAutoRenew() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: false,
		periodEnd: daysFromNow(7),
	})

	result, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(0, result.WarningsSent)
	s.Empty(s.GetDispatcher().Jobs())
}

func (s *DunningServiceSuite) TestGraceReminderOnMilestoneDay() {
	sh := seedShop(s.GetStores(), "shop_1")
	// Grace ends in 4 whole days with a 7 day window, so this is day 3.
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:             types.SubscriptionStatusPastDue,
		autoRenew:          true,
		periodEnd:          daysAgo(3),
		gracePeriodEndDate: ptrTime(daysFromNow(4)),
	})

	result, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.RemindersSent)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.NotNil(stored.LastReminderSentAt)

	// Owner has a phone number, so the reminder also goes out as a message.
	s.Len(s.GetDispatcher().JobsOfKind(types.JobKindMessage), 1)
}

func (s *DunningServiceSuite) TestGraceReminderNotRepeatedSameDay() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:             types.SubscriptionStatusPastDue,
		autoRenew:          true,
		periodEnd:          daysAgo(6),
		gracePeriodEndDate: ptrTime(daysFromNow(2)),
	})

	first, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, first.RemindersSent)

	second, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(0, second.RemindersSent)
}

func (s *DunningServiceSuite) TestSuspensionNoticeSentOnce() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusSuspended,
		autoRenew: true,
		periodEnd: daysAgo(15),
	})

	first, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, first.SuspensionNotices)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.True(stored.SuspensionNoticeSent)

	second, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(0, second.SuspensionNotices)
}

func (s *DunningServiceSuite) TestInlineEmailWhenDispatchUnavailable() {
	s.GetDispatcher().Unavailable = true

	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysFromNow(1),
	})

	result, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.WarningsSent)

	// Nothing reached the broker; the email went out inline instead.
	s.Empty(s.GetDispatcher().Jobs())
	s.Len(s.GetEmailSender().Sent(), 1)
}

func (s *DunningServiceSuite) TestMarkerNotPersistedWhenSendFails() {
	s.GetDispatcher().Unavailable = true
	s.GetEmailSender().Fail = true

	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysFromNow(7),
	})

	result, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(0, result.WarningsSent)
	s.Len(result.Errors, 1)

	// The milestone marker stays clear so the next pass retries the send.
	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Nil(stored.LastExpiryWarningSentAt)

	s.GetEmailSender().Fail = false
	retry, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, retry.WarningsSent)
}

func (s *DunningServiceSuite) TestWarningSentAgainNextMilestone() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
		periodEnd: daysFromNow(3),
	})

	// A warning for the 7 day milestone was sent days ago; the 3 day
	// milestone is new and must fire.
	sub.LastExpiryWarningDays = 7
	sub.LastExpiryWarningSentAt = ptrTime(time.Now().UTC().AddDate(0, 0, -4))
	s.NoError(s.GetStores().Subscriptions.UpdateNotificationState(s.GetContext(), sub))

	result, err := s.dunning.Run(s.GetContext())
	s.NoError(err)
	s.Equal(1, result.WarningsSent)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(3, stored.LastExpiryWarningDays)
}
