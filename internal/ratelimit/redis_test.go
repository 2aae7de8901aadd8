package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, 15*time.Minute), mr
}

func TestRedisStoreHitAndPeek(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	count, _, err := store.Hit(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, _, err = store.Hit(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, _, err = store.Peek(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, _, err = store.Peek(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestRedisStoreWindowExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	_, _, err := store.Hit(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(15*time.Minute + time.Second)

	count, _, err := store.Peek(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 0, count)

	count, _, err = store.Hit(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLimiterOverRedis(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	limiter := New(store, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Record(ctx, "k"))
	}

	limited, _, err := limiter.Limited(ctx, "k")
	require.NoError(t, err)
	require.True(t, limited)

	mr.FastForward(16 * time.Minute)

	limited, _, err = limiter.Limited(ctx, "k")
	require.NoError(t, err)
	require.False(t, limited)
}
