package auditlog

import "context"

// Repository defines the interface for the append-only audit log. There is
// deliberately no update or delete operation.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	ListByShopID(ctx context.Context, shopID string, limit int) ([]*Entry, error)
}
