package service_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/dukastack/billing/internal/api/dto"
	"github.com/dukastack/billing/internal/domain/auditlog"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/service"
	"github.com/dukastack/billing/internal/testutil"
	"github.com/dukastack/billing/internal/types"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceSuite
	subscriptions service.SubscriptionService
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceSuite.SetupTest()
	params := s.GetServiceParams()
	dunning := service.NewDunningService(params)
	s.subscriptions = service.NewSubscriptionService(params, dunning)
}

func (s *SubscriptionServiceSuite) TestCreateStartsTrial() {
	seedShop(s.GetStores(), "shop_1")

	resp, err := s.subscriptions.Create(s.GetContext(), &dto.CreateSubscriptionRequest{
		ShopID:     "shop_1",
		PlanCode:   "standard",
		Price:      decimal.NewFromInt(2500),
		Currency:   "KES",
		AutoRenew:  true,
		TrialDays:  14,
		PeriodDays: 30,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusTrial, resp.SubscriptionStatus)
	s.Equal(14, resp.DaysLeft(resp.CurrentPeriodStart))
}

func (s *SubscriptionServiceSuite) TestCreateRejectsSecondSubscription() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
	})

	_, err := s.subscriptions.Create(s.GetContext(), &dto.CreateSubscriptionRequest{
		ShopID:     "shop_1",
		PlanCode:   "standard",
		Currency:   "KES",
		PeriodDays: 30,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestCreateRequiresShop() {
	_, err := s.subscriptions.Create(s.GetContext(), &dto.CreateSubscriptionRequest{
		ShopID:     "shop_missing",
		PlanCode:   "standard",
		Currency:   "KES",
		PeriodDays: 30,
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestReactivateRestoresSuspended() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusSuspended,
		autoRenew: true,
		periodEnd: daysAgo(12),
	})
	sub.SuspensionNoticeSent = true
	s.NoError(s.GetStores().Subscriptions.UpdateNotificationState(s.GetContext(), sub))

	resp, err := s.subscriptions.Reactivate(s.GetContext(), sub.ID, &dto.ReactivateSubscriptionRequest{
		Reason:     "payment settled via bank transfer",
		PeriodDays: 30,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.False(stored.SuspensionNoticeSent)
	s.Nil(stored.GracePeriodEndDate)
	s.True(stored.CurrentPeriodEnd.After(stored.CurrentPeriodStart))

	s.Len(s.GetStores().AuditLogs.ListByAction(auditlog.ActionReactivation), 1)
	s.Len(s.GetDispatcher().JobsOfKind(types.JobKindEmail), 1)
}

func (s *SubscriptionServiceSuite) TestReactivateRejectsHealthy() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
	})

	_, err := s.subscriptions.Reactivate(s.GetContext(), sub.ID, &dto.ReactivateSubscriptionRequest{
		Reason: "operator mistake",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestCancelIsIdempotent() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
	})

	first, err := s.subscriptions.Cancel(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{
		Reason: "shop closing down",
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, first.SubscriptionStatus)
	s.NotNil(first.CancelledAt)
	s.False(first.AutoRenew)

	second, err := s.subscriptions.Cancel(s.GetContext(), sub.ID, &dto.CancelSubscriptionRequest{
		Reason: "repeated request",
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, second.SubscriptionStatus)
	s.Len(s.GetStores().AuditLogs.ListByAction(auditlog.ActionCancellation), 1)
}

func (s *SubscriptionServiceSuite) TestGetReadsThroughCache() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:    types.SubscriptionStatusActive,
		autoRenew: true,
	})

	first, err := s.subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(sub.ID, first.ID)

	again, err := s.subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(sub.ID, again.ID)
}
