package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		target   time.Time
		expected int
	}{
		{"same instant", now, 0},
		{"later today", now.Add(6 * time.Hour), 1},
		{"exactly one day", now.Add(24 * time.Hour), 1},
		{"just under a week", now.Add(7*24*time.Hour - time.Minute), 7},
		{"in the past", now.Add(-26 * time.Hour), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DaysUntil(now, tt.target))
		})
	}
}

func TestSameDay(t *testing.T) {
	base := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	assert.True(t, SameDay(base, base.Add(-23*time.Hour)))
	assert.False(t, SameDay(base, base.Add(time.Hour)))

	// Comparison is on the UTC calendar day regardless of zone.
	nairobi := time.FixedZone("EAT", 3*60*60)
	assert.True(t, SameDay(base, base.In(nairobi)))
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, SubscriptionStatusTrial.IsBillable())
	assert.True(t, SubscriptionStatusActive.IsBillable())
	assert.False(t, SubscriptionStatusPastDue.IsBillable())

	assert.True(t, SubscriptionStatusPastDue.IsDelinquent())
	assert.True(t, SubscriptionStatusSuspended.IsDelinquent())
	assert.True(t, SubscriptionStatusExpired.IsDelinquent())
	assert.False(t, SubscriptionStatusCancelled.IsDelinquent())
	assert.False(t, SubscriptionStatusActive.IsDelinquent())
}
