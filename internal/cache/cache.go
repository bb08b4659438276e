package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/logger"
)

const (
	ExpiryDefaultInMemory = 30 * time.Minute
	ExpiryDefaultRedis    = 5 * time.Minute
)

// Cache is the read-through cache used for shop and plan lookups inside the
// dunning and sweep batch passes. Misses and backend failures are treated
// identically: the caller falls through to the repository.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)
	Delete(ctx context.Context, key string)
}

// CacheType selects the cache backend.
type CacheType string

const (
	CacheTypeInMemory CacheType = "inmemory"
	CacheTypeRedis    CacheType = "redis"
)

// Initialize builds the cache selected by configuration. A disabled cache
// yields a no-op implementation so call sites never branch.
func Initialize(cfg *config.Configuration, log *logger.Logger, redisCache *RedisCache) Cache {
	if !cfg.Cache.Enabled {
		return noopCache{}
	}

	switch CacheType(cfg.Cache.Type) {
	case CacheTypeRedis:
		if redisCache != nil {
			log.Infow("cache initialized", "type", CacheTypeRedis)
			return redisCache
		}
		log.Warnw("redis cache requested but redis is not configured, falling back to in-memory")
		fallthrough
	default:
		log.Infow("cache initialized", "type", CacheTypeInMemory)
		return NewInMemoryCache()
	}
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string) (interface{}, bool) { return nil, false }
func (noopCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
}
func (noopCache) Delete(ctx context.Context, key string) {}

// UnmarshalValue converts a cached value to the requested type. It handles
// both the in-memory cache, which stores objects, and the redis cache,
// which stores JSON strings.
func UnmarshalValue[T any](value interface{}) (*T, bool) {
	if value == nil {
		return nil, false
	}

	if typed, ok := value.(*T); ok {
		return typed, true
	}

	if str, ok := value.(string); ok {
		var result T
		if err := json.Unmarshal([]byte(str), &result); err == nil {
			return &result, true
		}
	}

	return nil, false
}
