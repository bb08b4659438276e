package dispatch

import (
	"encoding/json"

	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/types"
)

// Job is a typed, serializable unit of async work. It is produced by the
// dunning engine and the sweep, enqueued to the broker and consumed exactly
// once by a worker.
type Job struct {
	ID          string            `json:"id"`
	Kind        types.JobKind     `json:"kind"`
	Priority    types.JobPriority `json:"priority"`
	DedupeKey   string            `json:"dedupe_key,omitempty"`
	Payload     json.RawMessage   `json:"payload"`
	MaxAttempts int               `json:"max_attempts"`
}

// NewJob builds a job with a generated id and the kind's default priority.
func NewJob(kind types.JobKind, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to serialize job payload").
			Mark(ierr.ErrValidation)
	}

	return &Job{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_JOB),
		Kind:        kind,
		Priority:    types.PriorityForKind(kind),
		Payload:     raw,
		MaxAttempts: types.DefaultJobMaxAttempts,
	}, nil
}

// WithDedupeKey sets a stable key so a re-triggered job replaces the queued
// one instead of duplicating it.
func (j *Job) WithDedupeKey(key string) *Job {
	j.DedupeKey = key
	return j
}

func (j *Job) Validate() error {
	if j.Kind == "" {
		return ierr.NewError("job kind is required").Mark(ierr.ErrValidation)
	}
	if len(j.Payload) == 0 {
		return ierr.NewError("job payload is required").Mark(ierr.ErrValidation)
	}
	return nil
}

// EmailJobPayload is the payload for JobKindEmail.
type EmailJobPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// MessageJobPayload is the payload for JobKindMessage (SMS/WhatsApp).
type MessageJobPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// NotificationJobPayload is the payload for JobKindNotification (in-app).
type NotificationJobPayload struct {
	ShopID string `json:"shop_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}
