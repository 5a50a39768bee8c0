package sink

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis starts an in-process miniredis server and wraps it in a
// Cache, grounded on
// taipm-go-deep-agent/agent/cache_redis_test.go's setupMiniRedis, adapted
// from that package's RedisCache to this package's narrower Cache seam.
func setupMiniRedis(t *testing.T) Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache, err := NewRedisCache(RedisOptions{Client: client})
	require.NoError(t, err)
	return cache
}

func TestRedisCacheRoundTripsAValue(t *testing.T) {
	cache := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "fp-1", "cached-document", time.Minute))

	got, err := cache.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.Equal(t, "cached-document", got)
}

func TestRedisCacheMissReturnsEmptyString(t *testing.T) {
	cache := setupMiniRedis(t)

	got, err := cache.Get(context.Background(), "never-written")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRedisCacheHonorsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache, err := NewRedisCache(RedisOptions{Client: client})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "fp-ttl", "value", time.Second))

	mr.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, "fp-ttl")
	require.NoError(t, err)
	require.Empty(t, got, "value should have expired")
}
