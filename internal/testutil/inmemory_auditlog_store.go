package testutil

import (
	"context"
	"sort"

	"github.com/dukastack/billing/internal/domain/auditlog"
)

// InMemoryAuditLogStore implements auditlog.Repository.
type InMemoryAuditLogStore struct {
	*InMemoryStore[*auditlog.Entry]
}

func NewInMemoryAuditLogStore() *InMemoryAuditLogStore {
	return &InMemoryAuditLogStore{InMemoryStore: NewInMemoryStore[*auditlog.Entry]()}
}

func (s *InMemoryAuditLogStore) Create(ctx context.Context, entry *auditlog.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	copied := *entry
	return s.InMemoryStore.Create(ctx, entry.ID, &copied)
}

func (s *InMemoryAuditLogStore) ListByShopID(ctx context.Context, shopID string, limit int) ([]*auditlog.Entry, error) {
	entries := s.List(ctx, func(entry *auditlog.Entry) bool {
		return entry.ShopID == shopID
	})

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]*auditlog.Entry, len(entries))
	for i, entry := range entries {
		copied := *entry
		out[i] = &copied
	}
	return out, nil
}

// ListByAction returns recorded entries matching the action, newest first.
// Test helper, not part of the repository contract.
func (s *InMemoryAuditLogStore) ListByAction(action string) []*auditlog.Entry {
	entries := s.List(context.Background(), func(entry *auditlog.Entry) bool {
		return entry.Action == action
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}
