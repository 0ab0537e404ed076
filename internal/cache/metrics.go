package cache

import (
	"sync/atomic"
	"time"

	"task-prioritizer/backend/internal/monitoring"
)

const (
	levelMemory = "l1"
	levelRedis  = "l2"
)

// CacheMetrics keeps local counters for Stats and mirrors every lookup into
// the prometheus registry.
type CacheMetrics struct {
	L1Hits    atomic.Int64
	L2Hits    atomic.Int64
	Misses    atomic.Int64
	Errors    atomic.Int64
	Sets      atomic.Int64
	StartTime time.Time
}

type CacheMetricsSnapshot struct {
	L1Hits    int64     `json:"l1_hits"`
	L2Hits    int64     `json:"l2_hits"`
	Misses    int64     `json:"misses"`
	Errors    int64     `json:"errors"`
	Sets      int64     `json:"sets"`
	StartTime time.Time `json:"start_time"`
}

func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{StartTime: time.Now()}
}

func (m *CacheMetrics) RecordHit(level string) {
	if level == levelMemory {
		m.L1Hits.Add(1)
	} else {
		m.L2Hits.Add(1)
	}
	monitoring.RecordCacheLookup(level, "hit")
}

func (m *CacheMetrics) RecordMiss(level string) {
	if level == levelRedis {
		m.Misses.Add(1)
	}
	monitoring.RecordCacheLookup(level, "miss")
}

func (m *CacheMetrics) RecordError(level string) {
	m.Errors.Add(1)
	monitoring.RecordCacheLookup(level, "error")
}

func (m *CacheMetrics) RecordSet() {
	m.Sets.Add(1)
}

func (m *CacheMetrics) Snapshot() CacheMetricsSnapshot {
	return CacheMetricsSnapshot{
		L1Hits:    m.L1Hits.Load(),
		L2Hits:    m.L2Hits.Load(),
		Misses:    m.Misses.Load(),
		Errors:    m.Errors.Load(),
		Sets:      m.Sets.Load(),
		StartTime: m.StartTime,
	}
}

// HitRate is the share of lookups, in percent, answered by either level.
func (m *CacheMetrics) HitRate() float64 {
	hits := m.L1Hits.Load() + m.L2Hits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}
