package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore shares the limiter window across instances. The key TTL plays
// the role of the per-key window reset; expiry is redis's sweep.
type RedisStore struct {
	client *redis.Client
	window time.Duration
}

func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	return &RedisStore{client: client, window: window}
}

func (s *RedisStore) Hit(ctx context.Context, key string) (int, time.Time, error) {
	rkey := redisKeyPrefix + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, rkey, s.window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratelimit expire: %w", err)
		}
		return int(count), time.Now().Add(s.window), nil
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit ttl: %w", err)
	}
	if ttl < 0 {
		ttl = s.window
	}
	return int(count), time.Now().Add(ttl), nil
}

func (s *RedisStore) Peek(ctx context.Context, key string) (int, time.Time, error) {
	rkey := redisKeyPrefix + key

	count, err := s.client.Get(ctx, rkey).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("ratelimit get: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return count, time.Now().Add(ttl), nil
}
