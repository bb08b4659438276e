package testutil

import (
	"context"

	"github.com/dukastack/billing/internal/domain/shop"
)

// InMemoryShopStore implements shop.Repository.
type InMemoryShopStore struct {
	*InMemoryStore[*shop.Shop]
}

func NewInMemoryShopStore() *InMemoryShopStore {
	return &InMemoryShopStore{InMemoryStore: NewInMemoryStore[*shop.Shop]()}
}

func copyShop(s *shop.Shop) *shop.Shop {
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}

func (s *InMemoryShopStore) Create(ctx context.Context, sh *shop.Shop) error {
	if err := sh.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Create(ctx, sh.ID, copyShop(sh))
}

func (s *InMemoryShopStore) Get(ctx context.Context, id string) (*shop.Shop, error) {
	sh, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyShop(sh), nil
}

func (s *InMemoryShopStore) Update(ctx context.Context, sh *shop.Shop) error {
	if err := sh.Validate(); err != nil {
		return err
	}
	return s.InMemoryStore.Update(ctx, sh.ID, copyShop(sh))
}
