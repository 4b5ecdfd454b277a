// Package redis carries the Redis-backed read-side helpers: the JSON detail
// cache, the sliding-window rate limiter and the idempotency store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	redisx "github.com/museyou/gongu-go/internal/redis"
)

// Cache is a read-through JSON cache. Concurrent misses for the same key
// collapse into a single loader call.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func getJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var out T

	b, ok, err := c.get(ctx, key)
	if err != nil || !ok {
		return out, ok, err
	}

	if err := json.Unmarshal(b, &out); err != nil {
		// treat a poisoned entry as a miss
		_ = c.Del(ctx, key)
		var zero T
		return zero, false, nil
	}

	return out, true, nil
}

// GetOrSetJSON loads through the cache. On a miss the loader runs once for
// all concurrent callers of the same key and its result is stored under ttl.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok, err := getJSON[T](ctx, c, key); err != nil || ok {
		return v, err
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		// another caller may have filled the key while we queued
		if v, ok, err := getJSON[T](ctx, c, key); err != nil || ok {
			return v, err
		}

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		_ = c.setJSON(ctx, key, v, ttl)

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, errors.New("cache: unexpected loader result type")
	}

	return v, nil
}

// InvalidateGroupPurchase drops the cached detail and the marketplace
// stats after a mutation.
func (c *Cache) InvalidateGroupPurchase(ctx context.Context, id uuid.UUID) error {
	return c.Del(
		ctx,
		redisx.KeyGroupPurchase(id),
		redisx.KeyGroupPurchaseStats(),
	)
}

func (c *Cache) InvalidatePerformance(ctx context.Context, id uuid.UUID) error {
	return c.Del(ctx, redisx.KeyPerformance(id))
}
