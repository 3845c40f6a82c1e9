package embedcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsSense/internal/config"
)

func TestMemoryHitAndMiss(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory(10, time.Minute)

	_, ok, err := cache.Get(ctx, "alpha")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, "alpha", []float32{1, 2}))
	vec, ok, err := cache.Get(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2}, vec)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory(10, 20*time.Millisecond)
	require.NoError(t, cache.Set(ctx, "beta", []float32{1}))
	time.Sleep(25 * time.Millisecond)

	_, ok, err := cache.Get(ctx, "beta")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory(1, time.Minute)
	require.NoError(t, cache.Set(ctx, "first", []float32{1}))
	require.NoError(t, cache.Set(ctx, "second", []float32{2}))

	_, ok, _ := cache.Get(ctx, "first")
	require.False(t, ok)
	_, ok, _ = cache.Get(ctx, "second")
	require.True(t, ok)
	require.Equal(t, 1, cache.Len())
}

func TestMemoryOverwriteKeepsNewest(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory(2, time.Minute)
	require.NoError(t, cache.Set(ctx, "k", []float32{1}))
	require.NoError(t, cache.Set(ctx, "k", []float32{2}))
	require.NoError(t, cache.Set(ctx, "other", []float32{3}))

	vec, ok, _ := cache.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []float32{2}, vec)
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, config.EmbeddingCache{Type: "none"})
	require.NoError(t, err)
	require.Nil(t, c)

	c, err = New(ctx, config.EmbeddingCache{Type: "memory", Capacity: 5, TTLSecs: 60})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, c)

	_, err = New(ctx, config.EmbeddingCache{Type: "memcached"})
	require.Error(t, err)

	t.Setenv("TEST_REDIS_URL", "")
	_, err = New(ctx, config.EmbeddingCache{Type: "redis", RedisURLEnv: "TEST_REDIS_URL"})
	require.Error(t, err)
}

func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	cache, err := NewRedis(ctx, url, time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, key, []float32{0.5, 0.25}))
	vec, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{0.5, 0.25}, vec)
}
