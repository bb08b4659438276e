package types

import (
	"math"
	"time"
)

// SubscriptionStatus is the domain status of a shop subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// IsBillable reports whether the subscription still renews on schedule.
func (s SubscriptionStatus) IsBillable() bool {
	return s == SubscriptionStatusTrial || s == SubscriptionStatusActive
}

// IsDelinquent reports whether the subscription is in the dunning funnel.
func (s SubscriptionStatus) IsDelinquent() bool {
	return s == SubscriptionStatusPastDue || s == SubscriptionStatusSuspended || s == SubscriptionStatusExpired
}

const (
	// DefaultGracePeriodDays is the past-due window before suspension.
	DefaultGracePeriodDays = 7

	// DefaultWebhookEventRetentionDays is how long processed provider events
	// are retained before the TTL purge removes them. Unprocessed events are
	// never purged.
	DefaultWebhookEventRetentionDays = 90
)

// ExpiryWarningDays are the days-before-expiry milestones at which a
// pre-expiry warning is sent, largest first.
var ExpiryWarningDays = []int{7, 3, 1}

// GraceReminderDays are the days-into-grace milestones at which a payment
// reminder is sent.
var GraceReminderDays = []int{1, 3, 5}

// DaysUntil returns the number of whole days from now until t, rounded up.
// A timestamp in the past yields a negative value.
func DaysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// SameDay reports whether two timestamps fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
