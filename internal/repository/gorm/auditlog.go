package gorm

import (
	"context"

	domainAudit "github.com/dukastack/billing/internal/domain/auditlog"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/postgres"
)

type auditLogRepository struct {
	client *postgres.Client
	logger *logger.Logger
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(client *postgres.Client, logger *logger.Logger) domainAudit.Repository {
	return &auditLogRepository{client: client, logger: logger}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *domainAudit.Entry) error {
	span := StartRepositorySpan(ctx, "audit_log", "create", map[string]interface{}{
		"shop_id": entry.ShopID,
		"action":  entry.Action,
	})
	defer FinishSpan(span)

	if err := entry.Validate(); err != nil {
		SetSpanError(span, err)
		return err
	}

	if err := r.client.DB(ctx).Create(entry).Error; err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to write audit log entry").
			WithReportableDetails(map[string]interface{}{
				"shop_id": entry.ShopID,
				"action":  entry.Action,
			}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *auditLogRepository) ListByShopID(ctx context.Context, shopID string, limit int) ([]*domainAudit.Entry, error) {
	var entries []*domainAudit.Entry
	err := r.client.DB(ctx).
		Where("shop_id = ?", shopID).
		Order("timestamp desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list audit log entries").
			WithReportableDetails(map[string]interface{}{"shop_id": shopID}).
			Mark(ierr.ErrDatabase)
	}
	return entries, nil
}
