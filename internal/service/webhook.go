package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukastack/billing/internal/api/dto"
	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/domain/payment"
	"github.com/dukastack/billing/internal/domain/subscription"
	"github.com/dukastack/billing/internal/domain/webhookevent"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

// WebhookService ingests payment provider events. The contract with the
// provider is acknowledge-almost-always: once the signature verifies, the
// event is written to the ledger and acknowledged even when its handler
// fails, because the failure is recorded on the ledger row and replayed
// later. Returning an error to the provider would only trigger provider-side
// redelivery, which the ledger dedupes anyway.
type WebhookService interface {
	// ProcessEvent verifies, records and handles one raw event delivery.
	// It returns an error only when ingestion is not configured or the
	// signature does not verify; handler failures are recorded, not
	// returned.
	ProcessEvent(ctx context.Context, payload []byte, signature string) error

	// ReplayFailed re-runs the handlers of ledger rows whose last attempt
	// failed.
	ReplayFailed(ctx context.Context, limit int) (*dto.ReplayResult, error)

	// PurgeProcessed deletes processed ledger rows past the retention
	// window.
	PurgeProcessed(ctx context.Context) (*dto.PurgeResult, error)
}

type webhookService struct {
	ServiceParams
	dunning DunningService
}

func NewWebhookService(params ServiceParams, dunning DunningService) WebhookService {
	return &webhookService{ServiceParams: params, dunning: dunning}
}

func (s *webhookService) ProcessEvent(ctx context.Context, payload []byte, signature string) error {
	if !s.Config.Stripe.Enabled() {
		return ierr.NewError("webhook ingestion is not configured").
			WithHint("Stripe webhook secret is not set").
			Mark(ierr.ErrServiceDisabled)
	}

	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, s.Config.Stripe.WebhookSecret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Webhook signature verification failed").
			Mark(ierr.ErrPermissionDenied)
	}

	existing, err := s.EventRepo.GetByEventID(ctx, event.ID)
	if err == nil {
		if existing.Processed {
			s.Logger.Infow("duplicate webhook delivery ignored",
				"event_id", event.ID,
				"type", existing.Type)
			return nil
		}
		// An unprocessed row means a previous attempt failed mid-handler.
		// The redelivery is our retry.
		s.handleRecorded(ctx, existing)
		return nil
	}
	if !ierr.IsNotFound(err) {
		return err
	}

	row := &webhookevent.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventID:   event.ID,
		Type:      string(event.Type),
		Payload:   json.RawMessage(payload),
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	if err := s.EventRepo.CreateIfNew(ctx, row); err != nil {
		if ierr.IsAlreadyExists(err) {
			// A concurrent delivery of the same event won the insert race
			// and owns the handling.
			s.Logger.Infow("concurrent webhook delivery ignored", "event_id", event.ID)
			return nil
		}
		return err
	}

	s.handleRecorded(ctx, row)
	return nil
}

// handleRecorded runs the handler for a ledger row and records the outcome.
// The returned error is the handler error, already recorded; callers on the
// ingestion path log it, the replay path counts it.
func (s *webhookService) handleRecorded(ctx context.Context, row *webhookevent.WebhookEvent) error {
	var event stripe.Event
	if err := json.Unmarshal(row.Payload, &event); err != nil {
		err = ierr.WithError(err).
			WithHint("Stored webhook payload is not a valid event").
			Mark(ierr.ErrValidation)
		s.markFailed(ctx, row.EventID, err)
		return err
	}

	if err := s.route(ctx, &event); err != nil {
		s.Logger.Errorw("webhook handler failed",
			"event_id", row.EventID,
			"type", row.Type,
			"error", err)
		s.markFailed(ctx, row.EventID, err)
		return err
	}

	if err := s.EventRepo.MarkProcessed(ctx, row.EventID); err != nil {
		s.Logger.Errorw("failed to mark webhook event processed",
			"event_id", row.EventID,
			"error", err)
		return err
	}
	return nil
}

func (s *webhookService) markFailed(ctx context.Context, eventID string, handlerErr error) {
	if err := s.EventRepo.MarkFailed(ctx, eventID, handlerErr.Error()); err != nil {
		s.Logger.Errorw("failed to record webhook handler failure",
			"event_id", eventID,
			"error", err)
	}
}

func (s *webhookService) route(ctx context.Context, event *stripe.Event) error {
	switch string(event.Type) {
	case "payment_intent.succeeded":
		return s.handlePaymentSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		return s.handlePaymentOutcome(ctx, event, payment.PaymentStatusFailed)
	case "payment_intent.canceled":
		return s.handlePaymentOutcome(ctx, event, payment.PaymentStatusCanceled)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "customer.updated":
		return s.handleCustomerUpdated(ctx, event)
	case "invoice.paid":
		return s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		return s.handleInvoiceFailed(ctx, event)
	case "charge.refunded":
		return s.handleChargeRefunded(ctx, event)
	default:
		s.Logger.Debugw("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// Payload shapes parsed out of event.Data.Raw. Only the fields the handlers
// read are declared; in webhook deliveries the related objects arrive as
// plain ids, not expanded objects.

type paymentIntentPayload struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Customer         string `json:"customer"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				LookupKey  string `json:"lookup_key"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type customerPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type invoicePayload struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Lines      struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

type chargePayload struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Refunds       struct {
		Data []struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"data"`
	} `json:"refunds"`
}

func (s *webhookService) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var pi paymentIntentPayload
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse payment intent payload").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubscriptionRepo.GetByProviderCustomerID(ctx, pi.Customer)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("payment for unknown customer, ignoring",
				"provider_customer_id", pi.Customer,
				"provider_payment_id", pi.ID)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if err := s.recordPayment(ctx, sub, pi.ID, payment.PaymentStatusSucceeded,
		amountFromMinorUnits(pi.Amount), pi.Currency, &now, ""); err != nil {
		return err
	}

	if sub.SubscriptionStatus.IsDelinquent() {
		return s.reactivateOnPayment(ctx, sub, "payment received")
	}
	return nil
}

func (s *webhookService) handlePaymentOutcome(ctx context.Context, event *stripe.Event, status payment.PaymentStatus) error {
	var pi paymentIntentPayload
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse payment intent payload").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubscriptionRepo.GetByProviderCustomerID(ctx, pi.Customer)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("payment event for unknown customer, ignoring",
				"provider_customer_id", pi.Customer)
			return nil
		}
		return err
	}

	failureReason := ""
	if pi.LastPaymentError != nil {
		failureReason = pi.LastPaymentError.Message
	}
	// No status transition here: the sweep decides when a missed payment
	// becomes past_due.
	return s.recordPayment(ctx, sub, pi.ID, status,
		amountFromMinorUnits(pi.Amount), pi.Currency, nil, failureReason)
}

func (s *webhookService) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	var sp subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sp); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse subscription payload").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.resolveSubscription(ctx, sp.ID, sp.Customer)
	if err != nil || sub == nil {
		return err
	}

	periodStart, periodEnd := sp.CurrentPeriodStart, sp.CurrentPeriodEnd
	if periodEnd == 0 && len(sp.Items.Data) > 0 {
		periodStart, periodEnd = sp.Items.Data[0].CurrentPeriodStart, sp.Items.Data[0].CurrentPeriodEnd
	}
	if periodEnd > 0 {
		sub.CurrentPeriodStart = time.Unix(periodStart, 0).UTC()
		sub.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	sub.AutoRenew = !sp.CancelAtPeriodEnd

	if len(sp.Items.Data) > 0 {
		price := sp.Items.Data[0].Price
		if price.LookupKey != "" && price.LookupKey != sub.PlanCode {
			s.audit(ctx, sub.ShopID, auditlog.ActionPlanChange, sub.PlanCode, price.LookupKey,
				"plan changed at payment provider")
			sub.PlanCode = price.LookupKey
		}
		if price.UnitAmount > 0 {
			sub.CurrentPrice = amountFromMinorUnits(price.UnitAmount)
			sub.Currency = strings.ToUpper(price.Currency)
		}
	}

	if sp.Status == "active" && sub.SubscriptionStatus.IsDelinquent() {
		if err := s.SubscriptionRepo.Update(ctx, sub); err != nil {
			return err
		}
		return s.reactivateOnPayment(ctx, sub, "subscription renewed at payment provider")
	}
	return s.SubscriptionRepo.Update(ctx, sub)
}

func (s *webhookService) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sp subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sp); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse subscription payload").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.resolveSubscription(ctx, sp.ID, sp.Customer)
	if err != nil || sub == nil {
		return err
	}
	if sub.SubscriptionStatus == types.SubscriptionStatusCancelled {
		return nil
	}

	cancelledAt := time.Now().UTC()
	if sp.CanceledAt > 0 {
		cancelledAt = time.Unix(sp.CanceledAt, 0).UTC()
	}

	from := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.GracePeriodEndDate = nil
	sub.CancelledAt = &cancelledAt
	sub.AutoRenew = false
	if err := s.SubscriptionRepo.UpdateTransitionFields(ctx, sub); err != nil {
		return err
	}

	s.audit(ctx, sub.ShopID, auditlog.ActionCancellation, string(from), string(sub.SubscriptionStatus),
		"subscription cancelled at payment provider")
	return nil
}

func (s *webhookService) handleCustomerUpdated(ctx context.Context, event *stripe.Event) error {
	var c customerPayload
	if err := json.Unmarshal(event.Data.Raw, &c); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse customer payload").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubscriptionRepo.GetByProviderCustomerID(ctx, c.ID)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Debugw("customer update for unknown customer, ignoring", "provider_customer_id", c.ID)
			return nil
		}
		return err
	}

	owner, err := s.ShopRepo.Get(ctx, sub.ShopID)
	if err != nil {
		return err
	}

	changed := false
	if c.Email != "" && c.Email != owner.OwnerEmail {
		owner.OwnerEmail = c.Email
		changed = true
	}
	if c.Name != "" && c.Name != owner.OwnerName {
		owner.OwnerName = c.Name
		changed = true
	}
	if !changed {
		return nil
	}
	return s.ShopRepo.Update(ctx, owner)
}

func (s *webhookService) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse invoice payload").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubscriptionRepo.GetByProviderCustomerID(ctx, inv.Customer)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("invoice for unknown customer, ignoring", "provider_customer_id", inv.Customer)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	if err := s.recordPayment(ctx, sub, inv.ID, payment.PaymentStatusSucceeded,
		amountFromMinorUnits(inv.AmountPaid), inv.Currency, &now, ""); err != nil {
		return err
	}

	// The invoice line period is the renewed billing period.
	if len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period.End > 0 {
		periodEnd := time.Unix(inv.Lines.Data[0].Period.End, 0).UTC()
		if periodEnd.After(sub.CurrentPeriodEnd) {
			sub.CurrentPeriodStart = time.Unix(inv.Lines.Data[0].Period.Start, 0).UTC()
			sub.CurrentPeriodEnd = periodEnd
		}
	}

	if sub.SubscriptionStatus.IsDelinquent() {
		return s.reactivateOnPayment(ctx, sub, "invoice paid")
	}
	return s.SubscriptionRepo.UpdateTransitionFields(ctx, sub)
}

func (s *webhookService) handleInvoiceFailed(ctx context.Context, event *stripe.Event) error {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse invoice payload").
			Mark(ierr.ErrValidation)
	}

	sub, err := s.SubscriptionRepo.GetByProviderCustomerID(ctx, inv.Customer)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("invoice for unknown customer, ignoring", "provider_customer_id", inv.Customer)
			return nil
		}
		return err
	}

	return s.recordPayment(ctx, sub, inv.ID, payment.PaymentStatusFailed,
		amountFromMinorUnits(inv.AmountPaid), inv.Currency, nil, "invoice payment failed")
}

func (s *webhookService) handleChargeRefunded(ctx context.Context, event *stripe.Event) error {
	var ch chargePayload
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to parse charge payload").
			Mark(ierr.ErrValidation)
	}

	providerPaymentID := ch.PaymentIntent
	if providerPaymentID == "" {
		providerPaymentID = ch.ID
	}

	for _, refund := range ch.Refunds.Data {
		err := s.PaymentRepo.RecordRefund(ctx, providerPaymentID, refund.ID,
			amountFromMinorUnits(refund.Amount))
		if err != nil {
			if ierr.IsAlreadyExists(err) {
				continue
			}
			if ierr.IsNotFound(err) {
				s.Logger.Warnw("refund for unknown payment, ignoring",
					"provider_payment_id", providerPaymentID,
					"provider_refund_id", refund.ID)
				continue
			}
			return err
		}

		if p, err := s.PaymentRepo.GetByProviderPaymentID(ctx, providerPaymentID); err == nil {
			s.audit(ctx, p.ShopID, auditlog.ActionRefundRecorded, "", refund.ID, "refund issued at payment provider")
		}
	}
	return nil
}

// resolveSubscription looks the subscription up by provider subscription id
// first, then by customer id. A miss on both is logged and swallowed so an
// event about an unmanaged subscription does not sit in the replay queue
// forever.
func (s *webhookService) resolveSubscription(ctx context.Context, providerSubID, providerCustomerID string) (*subscription.Subscription, error) {
	sub, err := s.SubscriptionRepo.GetByProviderSubscriptionID(ctx, providerSubID)
	if err == nil {
		return sub, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	sub, err = s.SubscriptionRepo.GetByProviderCustomerID(ctx, providerCustomerID)
	if err == nil {
		return sub, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	s.Logger.Warnw("event for unknown subscription, ignoring",
		"provider_subscription_id", providerSubID,
		"provider_customer_id", providerCustomerID)
	return nil, nil
}

func (s *webhookService) recordPayment(ctx context.Context, sub *subscription.Subscription, providerPaymentID string, status payment.PaymentStatus, amount decimal.Decimal, currency string, paidAt *time.Time, failureReason string) error {
	p := &payment.Payment{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		ShopID:            sub.ShopID,
		SubscriptionID:    sub.ID,
		ProviderPaymentID: providerPaymentID,
		PaymentStatus:     status,
		Amount:            amount,
		Currency:          strings.ToUpper(currency),
		PaidAt:            paidAt,
		FailureReason:     failureReason,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
	if err := s.PaymentRepo.Upsert(ctx, p); err != nil {
		return err
	}

	s.audit(ctx, sub.ShopID, auditlog.ActionPaymentRecorded, "", string(status),
		"payment "+providerPaymentID+" recorded from provider event")
	return nil
}

// reactivateOnPayment restores a delinquent subscription after the provider
// reports money in, resets the dunning markers and sends the confirmation.
func (s *webhookService) reactivateOnPayment(ctx context.Context, sub *subscription.Subscription, reason string) error {
	from := sub.SubscriptionStatus
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.GracePeriodEndDate = nil
	if err := s.SubscriptionRepo.UpdateTransitionFields(ctx, sub); err != nil {
		return err
	}

	sub.SuspensionNoticeSent = false
	sub.LastReminderSentAt = nil
	sub.LastExpiryWarningDays = 0
	sub.LastExpiryWarningSentAt = nil
	if err := s.SubscriptionRepo.UpdateNotificationState(ctx, sub); err != nil {
		return err
	}

	s.Cache.Delete(ctx, subscriptionCacheKey(sub.ID))
	s.audit(ctx, sub.ShopID, auditlog.ActionReactivation, string(from), string(sub.SubscriptionStatus), reason)

	if err := s.dunning.NotifyReactivated(ctx, sub); err != nil {
		s.Logger.Errorw("failed to send reactivation confirmation",
			"subscription_id", sub.ID,
			"error", err)
	}
	return nil
}

func (s *webhookService) ReplayFailed(ctx context.Context, limit int) (*dto.ReplayResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.EventRepo.ListFailed(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &dto.ReplayResult{}
	for _, row := range rows {
		result.Attempted++
		if err := s.handleRecorded(ctx, row); err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	s.Logger.Infow("webhook replay complete",
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}

func (s *webhookService) PurgeProcessed(ctx context.Context) (*dto.PurgeResult, error) {
	retentionDays := s.Config.Billing.WebhookEventRetentionDays
	if retentionDays <= 0 {
		retentionDays = types.DefaultWebhookEventRetentionDays
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	purged, err := s.EventRepo.PurgeProcessedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("webhook event purge complete",
		"purged", purged,
		"cutoff", cutoff)
	return &dto.PurgeResult{Purged: purged}, nil
}

// amountFromMinorUnits converts a provider amount in cents to a decimal
// major-unit amount.
func amountFromMinorUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(100))
}

func (s *webhookService) audit(ctx context.Context, shopID, action, oldValue, newValue, reason string) {
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
