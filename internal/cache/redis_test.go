package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	config := DefaultCacheConfig()
	config.Addr = mr.Addr()
	client := NewRedisClient(config)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, config.KeyPrefix), mr
}

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Empty(t, config.Password)
	assert.Equal(t, 0, config.DB)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 5, config.MinIdleConns)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
	assert.Equal(t, 3*time.Second, config.WriteTimeout)
	assert.Equal(t, "prioritizer:", config.KeyPrefix)
}

func TestNewRedisClient_WithNilConfig(t *testing.T) {
	client := NewRedisClient(nil)
	defer client.Close()

	assert.Equal(t, "localhost:6379", client.Options().Addr)
}

func TestRedisCache_SetAndGet(t *testing.T) {
	rc, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "model:abc", []byte(`{"format":"decision_tree/v1"}`), time.Hour))

	got, err := rc.Get(ctx, "model:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"format":"decision_tree/v1"}`, string(got))

	assert.True(t, mr.Exists("prioritizer:model:abc"))
	assert.Equal(t, time.Hour, mr.TTL("prioritizer:model:abc"))
}

func TestRedisCache_Get_Miss(t *testing.T) {
	rc, _ := setupTestRedis(t)

	_, err := rc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Expiry(t *testing.T) {
	rc, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "short", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := rc.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Delete(t *testing.T) {
	rc, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "gone", []byte("x"), time.Minute))
	require.NoError(t, rc.Delete(ctx, "gone"))

	_, err := rc.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_ServerDown(t *testing.T) {
	rc, mr := setupTestRedis(t)
	mr.Close()

	_, err := rc.Get(context.Background(), "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, rc.Health(context.Background()))
}

func TestRedisCache_HealthAndStats(t *testing.T) {
	rc, _ := setupTestRedis(t)

	assert.NoError(t, rc.Health(context.Background()))
	stats := rc.Stats()
	assert.Contains(t, stats, "pool_total")
}
