package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukastack/billing/internal/config"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
)

// Client wraps the go-redis client used by the redis-backed cache.
type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewClient connects to redis and verifies the connection with a bounded
// ping.
func NewClient(cfg *config.Configuration, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to redis").
			WithReportableDetails(map[string]interface{}{"address": cfg.Redis.Address}).
			Mark(ierr.ErrInternal)
	}

	log.Infow("connected to redis", "address", cfg.Redis.Address)
	return &Client{rdb: rdb, log: log}, nil
}

// GetClient returns the underlying go-redis client.
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
