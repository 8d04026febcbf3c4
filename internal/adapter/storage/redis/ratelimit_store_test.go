package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRateLimitStore(t *testing.T) (*RateLimitStore, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1_700_000_040, 0)
	store := NewRateLimitStore(client)
	store.now = func() time.Time { return now }
	return store, mr, &now
}

func TestRateLimitStore_Allow(t *testing.T) {
	store, _, now := newTestRateLimitStore(t)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			result, err := store.Allow(ctx, "10.0.0.1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, 3, result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, 0, result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.2", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 4, result.Remaining)
	})

	t.Run("next window starts fresh", func(t *testing.T) {
		*now = now.Add(time.Minute)
		result, err := store.Allow(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2, result.Remaining)
	})

	t.Run("reset is the window end", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.3", 10, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.ResetAt.Unix()%60)
		assert.True(t, result.ResetAt.After(*now))
	})
}

func TestRateLimitStore_KeysExpire(t *testing.T) {
	store, mr, _ := newTestRateLimitStore(t)

	_, err := store.Allow(context.Background(), "10.0.0.9", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 1)

	mr.FastForward(62 * time.Second)
	assert.Empty(t, mr.Keys())
}

func TestRateLimitStore_RedisDown(t *testing.T) {
	store, mr, _ := newTestRateLimitStore(t)
	mr.Close()

	_, err := store.Allow(context.Background(), "10.0.0.1", 1, time.Minute)
	assert.Error(t, err)
}
