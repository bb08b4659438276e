package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainEvent "github.com/dukastack/billing/internal/domain/webhookevent"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/postgres"
)

type webhookEventRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

// NewWebhookEventRepository creates a new webhook event ledger repository
func NewWebhookEventRepository(client *postgres.Client, logger *logger.Logger) domainEvent.Repository {
	return &webhookEventRepository{client: client, logger: logger}
}

// CreateIfNew inserts the write-ahead ledger row. The unique index on
// event_id turns a concurrent duplicate insert into ErrAlreadyExists, which
// is the at-most-once serialization point for redelivered events.
func (r *webhookEventRepository) CreateIfNew(ctx context.Context, event *domainEvent.WebhookEvent) error {
	span := StartRepositorySpan(ctx, "webhook_event", "create_if_new", map[string]interface{}{
		"event_id": event.EventID,
		"type":     event.Type,
	})
	defer FinishSpan(span)

	if err := event.Validate(); err != nil {
		SetSpanError(span, err)
		return err
	}

	if err := r.client.DB(ctx).Create(event).Error; err != nil {
		SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("Event already ledgered").
				WithReportableDetails(map[string]interface{}{"event_id": event.EventID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to ledger webhook event").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *webhookEventRepository) GetByEventID(ctx context.Context, eventID string) (*domainEvent.WebhookEvent, error) {
	span := StartRepositorySpan(ctx, "webhook_event", "get_by_event_id", map[string]interface{}{
		"event_id": eventID,
	})
	defer FinishSpan(span)

	var event domainEvent.WebhookEvent
	err := r.client.DB(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("Webhook event not found").
				WithReportableDetails(map[string]interface{}{"event_id": eventID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get webhook event").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return &event, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	err := r.client.DB(ctx).Model(&domainEvent.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
			"error":        "",
			"updated_at":   now,
		}).Error
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to mark webhook event processed").
			WithReportableDetails(map[string]interface{}{"event_id": eventID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID string, handlerErr string) error {
	now := time.Now().UTC()
	err := r.client.DB(ctx).Model(&domainEvent.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"error":         handlerErr,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": now,
			"updated_at":    now,
		}).Error
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to mark webhook event failed").
			WithReportableDetails(map[string]interface{}{"event_id": eventID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *webhookEventRepository) ListFailed(ctx context.Context, limit int) ([]*domainEvent.WebhookEvent, error) {
	var events []*domainEvent.WebhookEvent
	err := r.client.DB(ctx).
		Where("processed = ?", false).
		Where("retry_count > 0").
		Order("last_retry_at asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list failed webhook events").
			Mark(ierr.ErrDatabase)
	}
	return events, nil
}

// PurgeProcessedBefore is the TTL pass. The processed guard means an
// unprocessed event is retained indefinitely until it is replayed.
func (r *webhookEventRepository) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	span := StartRepositorySpan(ctx, "webhook_event", "purge_processed", map[string]interface{}{
		"cutoff": cutoff,
	})
	defer FinishSpan(span)

	res := r.client.DB(ctx).
		Where("processed = ?", true).
		Where("processed_at < ?", cutoff).
		Delete(&domainEvent.WebhookEvent{})
	if res.Error != nil {
		SetSpanError(span, res.Error)
		return 0, ierr.WithError(res.Error).
			WithHint("Failed to purge processed webhook events").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return res.RowsAffected, nil
}
