package cache

import (
	"context"
	"errors"
	"time"

	"task-prioritizer/backend/internal/logger"

	"go.uber.org/zap"
)

// MultiLevelCache answers from process memory first, then from redis through
// a circuit breaker. Redis failures degrade to misses and never surface.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      BlobCache
	breaker *CircuitBreaker
	l1TTL   time.Duration
	metrics *CacheMetrics
	log     *zap.Logger
}

type MultiLevelConfig struct {
	MemoryEntries int
	MemoryTTL     time.Duration
	Breaker       *CircuitBreakerConfig
}

func DefaultMultiLevelConfig() *MultiLevelConfig {
	return &MultiLevelConfig{
		MemoryEntries: 256,
		MemoryTTL:     5 * time.Minute,
		Breaker:       DefaultCircuitBreakerConfig(),
	}
}

// NewMultiLevelCache builds the cache. l2 may be nil, which leaves a
// memory-only cache.
func NewMultiLevelCache(l2 BlobCache, config *MultiLevelConfig, log *zap.Logger) *MultiLevelCache {
	if config == nil {
		config = DefaultMultiLevelConfig()
	}
	breakerConfig := *DefaultCircuitBreakerConfig()
	if config.Breaker != nil {
		breakerConfig = *config.Breaker
	}
	breakerConfig.IsFailure = func(err error) bool { return !errors.Is(err, ErrCacheMiss) }

	return &MultiLevelCache{
		l1:      NewMemoryCache(config.MemoryEntries),
		l2:      l2,
		breaker: NewCircuitBreaker(&breakerConfig),
		l1TTL:   config.MemoryTTL,
		metrics: NewCacheMetrics(),
		log:     logger.OrNop(log),
	}
}

func (c *MultiLevelCache) Get(ctx context.Context, key string) ([]byte, error) {
	if value, err := c.l1.Get(ctx, key); err == nil {
		c.metrics.RecordHit(levelMemory)
		return value, nil
	}
	c.metrics.RecordMiss(levelMemory)

	if c.l2 == nil {
		c.metrics.RecordMiss(levelRedis)
		return nil, ErrCacheMiss
	}

	var value []byte
	err := c.breaker.Execute(func() error {
		var err error
		value, err = c.l2.Get(ctx, key)
		return err
	})
	switch {
	case err == nil:
		c.metrics.RecordHit(levelRedis)
		_ = c.l1.Set(ctx, key, value, c.l1TTL)
		return value, nil
	case errors.Is(err, ErrCacheMiss):
		c.metrics.RecordMiss(levelRedis)
		return nil, ErrCacheMiss
	default:
		c.metrics.RecordError(levelRedis)
		c.log.Warn("model cache read degraded to miss", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}
}

// Set writes both levels. Only an l2 error is reported, and callers are
// free to ignore it.
func (c *MultiLevelCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	_ = c.l1.Set(ctx, key, value, l1TTL)
	c.metrics.RecordSet()

	if c.l2 == nil {
		return nil
	}
	err := c.breaker.Execute(func() error {
		return c.l2.Set(ctx, key, value, ttl)
	})
	if err != nil {
		c.metrics.RecordError(levelRedis)
		return err
	}
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, key string) error {
	_ = c.l1.Delete(ctx, key)
	if c.l2 == nil {
		return nil
	}
	return c.breaker.Execute(func() error {
		return c.l2.Delete(ctx, key)
	})
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"l1_entries": c.l1.Len(),
		"hit_rate":   c.metrics.HitRate(),
		"counters":   c.metrics.Snapshot(),
		"breaker":    c.breaker.GetStats(),
	}
}
