package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedProducts is a read-through cache over a ProductDirectory.
// Product rows back every invoice line lookup, so sales bursts hammer
// the same handful of keys; misses for the same id are collapsed with
// singleflight before they reach PostgreSQL.
type CachedProducts struct {
	next   ProductDirectory
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedProducts wraps next with a redis cache. A nil client returns
// next unchanged so the server can run without redis.
func NewCachedProducts(next ProductDirectory, client *redis.Client, logger *slog.Logger, ttl time.Duration) ProductDirectory {
	if client == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProducts{next: next, client: client, logger: logger, ttl: ttl}
}

func productKey(id int64) string {
	return fmt.Sprintf("catalog:product:%d", id)
}

// Get returns the cached product or falls through to the directory.
// Cache failures degrade to direct reads; they never fail the request.
func (c *CachedProducts) Get(ctx context.Context, id int64) (*Product, error) {
	raw, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var p Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
		// Corrupt entry, drop it and refetch.
		_ = c.client.Del(ctx, productKey(id)).Err()
	} else if !errors.Is(err, redis.Nil) && c.logger != nil {
		c.logger.Warn("product cache read failed", slog.Int64("product_id", id), slog.Any("error", err))
	}

	val, err, _ := c.group.Do(productKey(id), func() (any, error) {
		p, err := c.next.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(p); err == nil {
			if err := c.client.Set(ctx, productKey(id), raw, c.ttl).Err(); err != nil && c.logger != nil {
				c.logger.Warn("product cache write failed", slog.Int64("product_id", id), slog.Any("error", err))
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Product), nil
}

// Invalidate removes a product from the cache, used by the excluded
// catalog CRUD layer after price edits.
func (c *CachedProducts) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, productKey(id)).Err()
}
