package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	domainShop "github.com/dukastack/billing/internal/domain/shop"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/postgres"
	"github.com/dukastack/billing/internal/types"
)

type shopRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

// NewShopRepository creates a new shop repository
func NewShopRepository(client *postgres.Client, logger *logger.Logger) domainShop.Repository {
	return &shopRepository{client: client, logger: logger}
}

func (r *shopRepository) Create(ctx context.Context, s *domainShop.Shop) error {
	span := StartRepositorySpan(ctx, "shop", "create", map[string]interface{}{
		"shop_id": s.ID,
	})
	defer FinishSpan(span)

	if err := s.Validate(); err != nil {
		SetSpanError(span, err)
		return err
	}

	if err := r.client.DB(ctx).Create(s).Error; err != nil {
		SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("Shop already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create shop").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *shopRepository) Get(ctx context.Context, id string) (*domainShop.Shop, error) {
	span := StartRepositorySpan(ctx, "shop", "get", map[string]interface{}{
		"shop_id": id,
	})
	defer FinishSpan(span)

	var s domainShop.Shop
	err := r.client.DB(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		SetSpanError(span, err)
		if ierr.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.WithError(err).
				WithHint("Shop not found").
				WithReportableDetails(map[string]interface{}{"shop_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get shop").
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return &s, nil
}

func (r *shopRepository) Update(ctx context.Context, s *domainShop.Shop) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.UpdatedAt = time.Now().UTC()
	s.UpdatedBy = types.GetUserID(ctx)

	if err := r.client.DB(ctx).Save(s).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update shop").
			WithReportableDetails(map[string]interface{}{"shop_id": s.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}
