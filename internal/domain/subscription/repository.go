package subscription

import (
	"context"

	"github.com/dukastack/billing/internal/types"
)

// Repository defines the interface for subscription persistence operations.
//
// The sweep and webhook ingestion are concurrent writers over the same
// records, so updates are split into narrow field groups instead of full
// row replacement.
type Repository interface {
	// Create creates a new subscription
	Create(ctx context.Context, sub *Subscription) error

	// Get retrieves a subscription by id
	Get(ctx context.Context, id string) (*Subscription, error)

	// GetByShopID retrieves the subscription owned by a shop
	GetByShopID(ctx context.Context, shopID string) (*Subscription, error)

	// GetByProviderSubscriptionID resolves a subscription from the payment
	// provider's subscription id
	GetByProviderSubscriptionID(ctx context.Context, providerSubID string) (*Subscription, error)

	// GetByProviderCustomerID resolves a subscription from the payment
	// provider's customer id
	GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error)

	// ListByStatuses returns all subscriptions currently in one of the given
	// domain statuses. Used by the sweep and dunning batch passes.
	ListByStatuses(ctx context.Context, statuses []types.SubscriptionStatus) ([]*Subscription, error)

	// UpdateTransitionFields persists only the state machine fields:
	// subscription_status, grace_period_end_date, auto_renew,
	// current_period_start/end and cancelled_at.
	UpdateTransitionFields(ctx context.Context, sub *Subscription) error

	// UpdateNotificationState persists only the dunning milestone markers.
	UpdateNotificationState(ctx context.Context, sub *Subscription) error

	// Update persists the full record. Reserved for admin flows; batch code
	// uses the narrow updates above.
	Update(ctx context.Context, sub *Subscription) error
}
