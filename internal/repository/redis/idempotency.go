package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const idemNS = "museyou:v1:idem"

// Values are either the in-flight marker or a stored response body.
const (
	idemLockVal   = "LOCK"
	idemResPrefix = "RES:"
)

func KeyIdemJoin(gpID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:join:%s:%s", idemNS, gpID, idemKey)
}

func KeyIdemCreate(userID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:create:%s:%s", idemNS, userID, idemKey)
}

// IdempotencyStore replays the stored response for a repeated
// Idempotency-Key instead of re-running the mutation.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock claims the key for the current request. False means another
// request holds it or already finished.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLockVal, lockTTL).Result()
}

// SaveResult replaces the lock with the response body under the store TTL.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResPrefix+jsonPayload, s.ttl).Err()
}

// GetResult returns the stored response body, if the mutation finished.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	payload, ok := strings.CutPrefix(v, idemResPrefix)
	if !ok {
		// still locked
		return "", false, nil
	}

	return payload, true, nil
}

// Release drops the key so a failed mutation can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
