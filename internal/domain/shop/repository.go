package shop

import "context"

// Repository defines the interface for shop persistence operations.
type Repository interface {
	Create(ctx context.Context, shop *Shop) error
	Get(ctx context.Context, id string) (*Shop, error)
	Update(ctx context.Context, shop *Shop) error
}
