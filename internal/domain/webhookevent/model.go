package webhookevent

import (
	"encoding/json"
	"time"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

// WebhookEvent is the idempotency ledger row for one provider-issued event.
// The unique EventID column is the only mechanism that makes duplicate
// deliveries safe, so a row is inserted before any handler runs.
type WebhookEvent struct {
	ID      string `json:"id" gorm:"primaryKey;column:id"`
	EventID string `json:"event_id" gorm:"column:event_id;uniqueIndex"`
	Type    string `json:"type" gorm:"column:type;index"`

	Payload json.RawMessage `json:"payload" gorm:"column:payload;type:jsonb"`

	Processed   bool       `json:"processed" gorm:"column:processed;index"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	Error       string     `json:"error,omitempty" gorm:"column:error"`
	RetryCount  int        `json:"retry_count" gorm:"column:retry_count"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty" gorm:"column:last_retry_at"`

	types.BaseModel
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (e *WebhookEvent) Validate() error {
	if e.EventID == "" {
		return ierr.NewError("event_id is required").Mark(ierr.ErrValidation)
	}
	if e.Type == "" {
		return ierr.NewError("event type is required").Mark(ierr.ErrValidation)
	}
	return nil
}
