package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore persists counters in Redis so they outlive the candidate
// process. Every increment refreshes the key's TTL.
type RedisCounterStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCounterStore creates a RedisCounterStore. A zero ttl keeps keys forever.
func NewRedisCounterStore(rdb *redis.Client, ttl time.Duration) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb, ttl: ttl}
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q: %w", val, err)
	}
	return n, nil
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string) (int, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr counter: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisCounterStore) Clear(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clear counter: %w", err)
	}
	return nil
}
