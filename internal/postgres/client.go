package postgres

import (
	"context"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/domain/payment"
	"github.com/dukastack/billing/internal/domain/shop"
	"github.com/dukastack/billing/internal/domain/subscription"
	"github.com/dukastack/billing/internal/domain/webhookevent"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
)

// Client wraps the gorm connection handle shared by all repositories.
type Client struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewClient opens the postgres connection. TranslateError is enabled so
// repositories can match gorm.ErrDuplicatedKey instead of driver errors.
func NewClient(cfg *config.Configuration, log *logger.Logger) (*Client, error) {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to postgres").
			Mark(ierr.ErrDatabase)
	}

	return &Client{db: db, log: log}, nil
}

// DB returns the underlying gorm handle scoped to the given context.
func (c *Client) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

// Migrate applies the schema for all billing tables.
func (c *Client) Migrate() error {
	err := c.db.AutoMigrate(
		&shop.Shop{},
		&subscription.Subscription{},
		&webhookevent.WebhookEvent{},
		&auditlog.Entry{},
		&payment.Payment{},
		&payment.Refund{},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to migrate database schema").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
