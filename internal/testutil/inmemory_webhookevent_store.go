package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/dukastack/billing/internal/domain/webhookevent"
	ierr "github.com/dukastack/billing/internal/errors"
)

// InMemoryWebhookEventStore implements webhookevent.Repository. Rows are
// keyed by provider event id so CreateIfNew models the unique index that
// serializes duplicate deliveries.
type InMemoryWebhookEventStore struct {
	mu     sync.Mutex
	events map[string]*webhookevent.WebhookEvent
}

func NewInMemoryWebhookEventStore() *InMemoryWebhookEventStore {
	return &InMemoryWebhookEventStore{events: make(map[string]*webhookevent.WebhookEvent)}
}

func copyWebhookEvent(e *webhookevent.WebhookEvent) *webhookevent.WebhookEvent {
	if e == nil {
		return nil
	}
	copied := *e
	copied.ProcessedAt = copyTime(e.ProcessedAt)
	copied.LastRetryAt = copyTime(e.LastRetryAt)
	copied.Payload = append([]byte(nil), e.Payload...)
	return &copied
}

func (s *InMemoryWebhookEventStore) CreateIfNew(ctx context.Context, event *webhookevent.WebhookEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.EventID]; exists {
		return ierr.NewError("event already recorded").
			WithReportableDetails(map[string]interface{}{"event_id": event.EventID}).
			Mark(ierr.ErrAlreadyExists)
	}
	s.events[event.EventID] = copyWebhookEvent(event)
	return nil
}

func (s *InMemoryWebhookEventStore) GetByEventID(ctx context.Context, eventID string) (*webhookevent.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, exists := s.events[eventID]
	if !exists {
		return nil, ierr.NewError("webhook event not found").
			WithReportableDetails(map[string]interface{}{"event_id": eventID}).
			Mark(ierr.ErrNotFound)
	}
	return copyWebhookEvent(event), nil
}

func (s *InMemoryWebhookEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, exists := s.events[eventID]
	if !exists {
		return ierr.NewError("webhook event not found").Mark(ierr.ErrNotFound)
	}
	event.Processed = true
	event.ProcessedAt = lo.ToPtr(time.Now().UTC())
	event.Error = ""
	return nil
}

func (s *InMemoryWebhookEventStore) MarkFailed(ctx context.Context, eventID string, handlerErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, exists := s.events[eventID]
	if !exists {
		return ierr.NewError("webhook event not found").Mark(ierr.ErrNotFound)
	}
	event.Error = handlerErr
	event.RetryCount++
	event.LastRetryAt = lo.ToPtr(time.Now().UTC())
	return nil
}

func (s *InMemoryWebhookEventStore) ListFailed(ctx context.Context, limit int) ([]*webhookevent.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []*webhookevent.WebhookEvent
	for _, event := range s.events {
		if !event.Processed && event.RetryCount > 0 {
			failed = append(failed, copyWebhookEvent(event))
		}
	}

	sort.Slice(failed, func(i, j int) bool {
		return failed[i].CreatedAt.Before(failed[j].CreatedAt)
	})
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (s *InMemoryWebhookEventStore) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for eventID, event := range s.events {
		if event.Processed && event.ProcessedAt != nil && event.ProcessedAt.Before(cutoff) {
			delete(s.events, eventID)
			purged++
		}
	}
	return purged, nil
}

func (s *InMemoryWebhookEventStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *InMemoryWebhookEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string]*webhookevent.WebhookEvent)
}
