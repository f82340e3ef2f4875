package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rbac:version"

// Cache stores resolved permission sets in Redis behind a version key. Graph
// mutations bump the version so stale sets age out without per-user
// invalidation bookkeeping. A nil Cache (or client) degrades to pass-through.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached permission set by advancing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// FetchPermissions loads the cached permission set for the key or populates
// it via the loader. Cache failures fall through to the loader.
func (c *Cache) FetchPermissions(ctx context.Context, key string, loader func(context.Context) ([]Permission, error)) ([]Permission, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	full, err := c.buildKey(ctx, key)
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, full).Bytes()
	if err == nil {
		var perms []Permission
		if jsonErr := json.Unmarshal(payload, &perms); jsonErr == nil {
			return perms, nil
		}
	}
	perms, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if raw, jsonErr := json.Marshal(perms); jsonErr == nil {
		_ = c.client.Set(ctx, full, raw, c.ttl).Err()
	}
	return perms, nil
}

func (c *Cache) buildKey(ctx context.Context, key string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("abilities:%s:%d", key, ver), nil
}
