package service_test

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/suite"

	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/domain/payment"
	"github.com/dukastack/billing/internal/domain/webhookevent"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/service"
	"github.com/dukastack/billing/internal/testutil"
	"github.com/dukastack/billing/internal/types"
)

const testWebhookSecret = "whsec_test_secret"

type WebhookServiceSuite struct {
	testutil.BaseServiceSuite
	webhook service.WebhookService
}

func TestWebhookService(t *testing.T) {
	suite.Run(t, new(WebhookServiceSuite))
}

func (s *WebhookServiceSuite) SetupTest() {
	s.BaseServiceSuite.SetupTest()
	s.GetConfig().Stripe.WebhookSecret = testWebhookSecret

	params := s.GetServiceParams()
	dunning := service.NewDunningService(params)
	s.webhook = service.NewWebhookService(params, dunning)
}

// signedEvent builds a provider event payload and a valid signature header
// for it.
func (s *WebhookServiceSuite) signedEvent(eventID, eventType string, object map[string]interface{}) ([]byte, string) {
	payload, err := json.Marshal(map[string]interface{}{
		"id":     eventID,
		"object": "event",
		"type":   eventType,
		"data":   map[string]interface{}{"object": object},
	})
	s.Require().NoError(err)

	now := time.Now()
	signature := stripewebhook.ComputeSignature(now, payload, testWebhookSecret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(signature))
	return payload, header
}

func (s *WebhookServiceSuite) TestRejectsBadSignature() {
	payload, _ := s.signedEvent("evt_1", "payment_intent.succeeded", map[string]interface{}{"id": "pi_1"})

	err := s.webhook.ProcessEvent(s.GetContext(), payload, "t=1,v1=deadbeef")
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrPermissionDenied))
	s.Equal(0, s.GetStores().Events.Count())
}

func (s *WebhookServiceSuite) TestRefusesWithoutConfiguration() {
	s.GetConfig().Stripe.WebhookSecret = ""
	payload, header := s.signedEvent("evt_1", "payment_intent.succeeded", map[string]interface{}{"id": "pi_1"})

	err := s.webhook.ProcessEvent(s.GetContext(), payload, header)
	s.Error(err)
	s.True(ierr.IsServiceDisabled(err))
}

func (s *WebhookServiceSuite) TestPaymentSucceededReactivatesSuspended() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:             types.SubscriptionStatusSuspended,
		autoRenew:          true,
		periodEnd:          daysAgo(12),
		providerCustomerID: "cus_1",
	})
	sub.SuspensionNoticeSent = true
	s.NoError(s.GetStores().Subscriptions.UpdateNotificationState(s.GetContext(), sub))

	payload, header := s.signedEvent("evt_1", "payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_1",
		"amount":   250000,
		"currency": "kes",
		"customer": "cus_1",
	})
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, stored.SubscriptionStatus)
	s.Nil(stored.GracePeriodEndDate)
	s.False(stored.SuspensionNoticeSent)
	s.Nil(stored.LastReminderSentAt)

	p, err := s.GetStores().Payments.GetByProviderPaymentID(s.GetContext(), "pi_1")
	s.NoError(err)
	s.Equal(payment.PaymentStatusSucceeded, p.PaymentStatus)
	s.True(p.Amount.Equal(decimal.NewFromInt(2500)))

	s.Len(s.GetStores().AuditLogs.ListByAction(auditlog.ActionReactivation), 1)

	row, err := s.GetStores().Events.GetByEventID(s.GetContext(), "evt_1")
	s.NoError(err)
	s.True(row.Processed)
}

func (s *WebhookServiceSuite) TestDuplicateDeliveryHandledOnce() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:             types.SubscriptionStatusActive,
		autoRenew:          true,
		periodEnd:          daysFromNow(10),
		providerCustomerID: "cus_1",
	})

	payload, header := s.signedEvent("evt_dup", "payment_intent.succeeded", map[string]interface{}{
		"id":       "pi_1",
		"amount":   250000,
		"currency": "kes",
		"customer": "cus_1",
	})

	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))

	s.Equal(1, s.GetStores().Events.Count())
	s.Equal(1, s.GetStores().Payments.Count())
	// One payment-recorded audit entry, not two.
	s.Len(s.GetStores().AuditLogs.ListByAction(auditlog.ActionPaymentRecorded), 1)
}

func (s *WebhookServiceSuite) TestSubscriptionDeletedCancels() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:        types.SubscriptionStatusActive,
		autoRenew:     true,
		periodEnd:     daysFromNow(10),
		providerSubID: "sub_provider_1",
	})

	payload, header := s.signedEvent("evt_1", "customer.subscription.deleted", map[string]interface{}{
		"id":          "sub_provider_1",
		"canceled_at": time.Now().Unix(),
	})
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, stored.SubscriptionStatus)
	s.NotNil(stored.CancelledAt)
	s.False(stored.AutoRenew)
	s.Len(s.GetStores().AuditLogs.ListByAction(auditlog.ActionCancellation), 1)
}

func (s *WebhookServiceSuite) TestSubscriptionUpdatedSyncsPeriodAndAutoRenew() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:        types.SubscriptionStatusActive,
		autoRenew:     true,
		periodEnd:     daysFromNow(3),
		providerSubID: "sub_provider_1",
	})

	newPeriodEnd := time.Now().AddDate(0, 1, 0).Unix()
	payload, header := s.signedEvent("evt_1", "customer.subscription.updated", map[string]interface{}{
		"id":                   "sub_provider_1",
		"status":               "active",
		"cancel_at_period_end": true,
		"current_period_start": time.Now().Unix(),
		"current_period_end":   newPeriodEnd,
	})
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))

	stored, err := s.GetStores().Subscriptions.Get(s.GetContext(), sub.ID)
	s.NoError(err)
	s.False(stored.AutoRenew)
	s.Equal(time.Unix(newPeriodEnd, 0).UTC(), stored.CurrentPeriodEnd)
}

func (s *WebhookServiceSuite) TestCustomerUpdatedSyncsOwnerContact() {
	sh := seedShop(s.GetStores(), "shop_1")
	seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:             types.SubscriptionStatusActive,
		autoRenew:          true,
		periodEnd:          daysFromNow(10),
		providerCustomerID: "cus_1",
	})

	payload, header := s.signedEvent("evt_1", "customer.updated", map[string]interface{}{
		"id":    "cus_1",
		"email": "new-owner@cornerbooks.test",
	})
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))

	stored, err := s.GetStores().Shops.Get(s.GetContext(), sh.ID)
	s.NoError(err)
	s.Equal("new-owner@cornerbooks.test", stored.OwnerEmail)
}

func (s *WebhookServiceSuite) TestChargeRefundedCountsEachRefundOnce() {
	sh := seedShop(s.GetStores(), "shop_1")
	sub := seedSubscription(s.GetStores(), sh.ID, subscriptionFixture{
		status:             types.SubscriptionStatusActive,
		autoRenew:          true,
		periodEnd:          daysFromNow(10),
		providerCustomerID: "cus_1",
	})
	s.NoError(s.GetStores().Payments.Upsert(s.GetContext(), &payment.Payment{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		ShopID:            sh.ID,
		SubscriptionID:    sub.ID,
		ProviderPaymentID: "pi_1",
		PaymentStatus:     payment.PaymentStatusSucceeded,
		Amount:            decimal.NewFromInt(2500),
		Currency:          "KES",
	}))

	object := map[string]interface{}{
		"id":             "ch_1",
		"payment_intent": "pi_1",
		"refunds": map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "re_1", "amount": 100000, "currency": "kes"},
			},
		},
	}

	payload, header := s.signedEvent("evt_1", "charge.refunded", object)
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))

	// The provider redelivers the same refund under a fresh event id.
	payload2, header2 := s.signedEvent("evt_2", "charge.refunded", object)
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload2, header2))

	p, err := s.GetStores().Payments.GetByProviderPaymentID(s.GetContext(), "pi_1")
	s.NoError(err)
	s.True(p.RefundedAmount.Equal(decimal.NewFromInt(1000)),
		"refunded amount should be counted once, got %s", p.RefundedAmount)
}

func (s *WebhookServiceSuite) TestUnknownEventTypeAcknowledged() {
	payload, header := s.signedEvent("evt_1", "product.created", map[string]interface{}{"id": "prod_1"})
	s.NoError(s.webhook.ProcessEvent(s.GetContext(), payload, header))

	row, err := s.GetStores().Events.GetByEventID(s.GetContext(), "evt_1")
	s.NoError(err)
	s.True(row.Processed)
}

func (s *WebhookServiceSuite) TestReplayCountsPersistentFailures() {
	row := &webhookevent.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventID:   "evt_broken",
		Type:      "payment_intent.succeeded",
		Payload:   []byte("{not json"),
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().Events.CreateIfNew(s.GetContext(), row))
	s.NoError(s.GetStores().Events.MarkFailed(s.GetContext(), row.EventID, "parse failure"))

	result, err := s.webhook.ReplayFailed(s.GetContext(), 10)
	s.NoError(err)
	s.Equal(1, result.Attempted)
	s.Equal(1, result.Failed)
	s.Equal(0, result.Succeeded)
}

func (s *WebhookServiceSuite) TestPurgeKeepsRecentAndUnprocessed() {
	old := &webhookevent.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventID:   "evt_old",
		Type:      "invoice.paid",
		Payload:   []byte("{}"),
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().Events.CreateIfNew(s.GetContext(), old))
	s.NoError(s.GetStores().Events.MarkProcessed(s.GetContext(), old.EventID))

	// Backdate the processed timestamp beyond retention.
	stored, err := s.GetStores().Events.GetByEventID(s.GetContext(), old.EventID)
	s.NoError(err)
	stored.ProcessedAt = ptrTime(time.Now().UTC().AddDate(0, 0, -types.DefaultWebhookEventRetentionDays-1))
	s.GetStores().Events.Clear()
	s.NoError(s.GetStores().Events.CreateIfNew(s.GetContext(), stored))

	unprocessed := &webhookevent.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventID:   "evt_pending",
		Type:      "invoice.paid",
		Payload:   []byte("{}"),
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().Events.CreateIfNew(s.GetContext(), unprocessed))

	result, err := s.webhook.PurgeProcessed(s.GetContext())
	s.NoError(err)
	s.Equal(int64(1), result.Purged)
	s.Equal(1, s.GetStores().Events.Count())
}
