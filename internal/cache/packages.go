package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edumint/edumint-backend/internal/config"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

// PackageCache is a read-through cache in front of the document store. Every
// method is safe on a nil receiver so the cache can be disabled by simply not
// configuring Redis.
type PackageCache struct {
	log *logger.Logger
	rdb *redis.Client
	ttl time.Duration
}

// NewPackageCache returns nil when no Redis address is configured. A nil
// cache is valid and does nothing.
func NewPackageCache(cfg config.Config, log *logger.Logger) *PackageCache {
	if cfg.RedisAddr == "" {
		log.Info("Redis not configured, package cache disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return &PackageCache{
		log: log.With("service", "PackageCache"),
		rdb: rdb,
		ttl: cfg.CacheTTL,
	}
}

func key(id string) string { return "pkg:" + id }

// Get returns the cached package or nil on miss. Cache failures degrade to a
// miss; the store remains the source of truth.
func (c *PackageCache) Get(ctx context.Context, id string) *types.ContentPackage {
	if c == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		c.log.Warn("cache get failed", "package_id", id, "error", err)
		return nil
	}
	var pkg types.ContentPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		c.log.Warn("cache entry corrupt, evicting", "package_id", id, "error", err)
		c.rdb.Del(ctx, key(id))
		return nil
	}
	return &pkg
}

func (c *PackageCache) Set(ctx context.Context, pkg *types.ContentPackage) {
	if c == nil || pkg == nil {
		return
	}
	raw, err := json.Marshal(pkg)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(pkg.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "package_id", pkg.ID, "error", err)
	}
}

// Invalidate must be called after every write to the store.
func (c *PackageCache) Invalidate(ctx context.Context, id string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, key(id)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", "package_id", id, "error", err)
	}
}

// Ping verifies connectivity at startup. Nil cache pings fine.
func (c *PackageCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}
