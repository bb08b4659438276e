package auditlog

import (
	"time"

	ierr "github.com/dukastack/billing/internal/errors"
)

// Entry is one append-only record of an administrative or system-driven
// state change. Entries are never mutated or deleted; together they form
// the compliance trail for billing decisions.
type Entry struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id"`
	ShopID      string    `json:"shop_id" gorm:"column:shop_id;index"`
	PerformedBy string    `json:"performed_by" gorm:"column:performed_by"`
	Action      string    `json:"action" gorm:"column:action;index"`
	OldValue    string    `json:"old_value,omitempty" gorm:"column:old_value"`
	NewValue    string    `json:"new_value,omitempty" gorm:"column:new_value"`
	Reason      string    `json:"reason,omitempty" gorm:"column:reason"`
	Timestamp   time.Time `json:"timestamp" gorm:"column:timestamp;index"`
}

func (Entry) TableName() string {
	return "audit_logs"
}

func (e *Entry) Validate() error {
	if e.ShopID == "" {
		return ierr.NewError("shop_id is required").Mark(ierr.ErrValidation)
	}
	if e.Action == "" {
		return ierr.NewError("action is required").Mark(ierr.ErrValidation)
	}
	return nil
}

// Actions recorded by the billing system.
const (
	ActionStatusTransition = "subscription.status_transition"
	ActionReactivation     = "subscription.reactivated"
	ActionCancellation     = "subscription.cancelled"
	ActionPlanChange       = "subscription.plan_changed"
	ActionPaymentRecorded  = "payment.recorded"
	ActionRefundRecorded   = "payment.refund_recorded"
)
