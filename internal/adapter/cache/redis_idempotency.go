// Package cache provides Redis-backed caching adapters.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idemKeyPrefix = "sanitizer:idem:"

// IdempotencyStore maps Idempotency-Key headers to batch ids with a TTL so
// retried submissions resolve to the original batch without a DB round trip.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyStore constructs an IdempotencyStore.
func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Lookup returns the batch id remembered for key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, idemKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("op=idem.lookup: %w", err)
	}
	return v, true, nil
}

// Remember stores the key -> batch id mapping. An existing mapping is kept
// so the first submission always wins.
func (s *IdempotencyStore) Remember(ctx context.Context, key, batchID string) error {
	if err := s.rdb.SetNX(ctx, idemKeyPrefix+key, batchID, s.ttl).Err(); err != nil {
		return fmt.Errorf("op=idem.remember: %w", err)
	}
	return nil
}
