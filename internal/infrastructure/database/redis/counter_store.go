// internal/infrastructure/database/redis/counter_store.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore keeps throttle counters in Redis, one key per counter
type CounterStore struct {
	client *redis.Client
}

// NewCounterStore creates a Redis backed counter store
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

// Get returns the counter value and whether the key exists
func (s *CounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// Increment runs INCR and EXPIRE in one MULTI so no update is lost and the ttl always restarts
func (s *CounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Put stores value under key for ttl
func (s *CounterStore) Put(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Forget deletes keys
func (s *CounterStore) Forget(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
