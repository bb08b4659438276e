package webhookevent

import (
	"context"
	"time"
)

// Repository defines the interface for the webhook event ledger.
type Repository interface {
	// CreateIfNew inserts a ledger row for a previously unseen event id.
	// A concurrent or repeated insert for the same event id fails with
	// ErrAlreadyExists; that failure is the serialization point that keeps
	// handlers at-most-once under duplicate delivery.
	CreateIfNew(ctx context.Context, event *WebhookEvent) error

	// GetByEventID retrieves a ledger row by provider event id.
	GetByEventID(ctx context.Context, eventID string) (*WebhookEvent, error)

	// MarkProcessed records handler success.
	MarkProcessed(ctx context.Context, eventID string) error

	// MarkFailed records a handler failure, incrementing the retry count and
	// leaving the row unprocessed for a later replay.
	MarkFailed(ctx context.Context, eventID string, handlerErr string) error

	// ListFailed returns unprocessed events that have at least one failed
	// attempt, for replay.
	ListFailed(ctx context.Context, limit int) ([]*WebhookEvent, error)

	// PurgeProcessedBefore deletes processed rows older than the cutoff.
	// Unprocessed rows are never purged. Returns the number deleted.
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
