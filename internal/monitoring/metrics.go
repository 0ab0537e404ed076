package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ranking paths.
const (
	PathML       = "ml"
	PathRules    = "rules"
	PathFallback = "fallback"
)

// Training outcomes.
const (
	OutcomeTrained      = "trained"
	OutcomeInsufficient = "insufficient"
	OutcomeFailed       = "failed"
)

var (
	RankingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioritizer_rankings_total",
			Help: "Rankings served, by scoring path",
		},
		[]string{"path"},
	)

	RankingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prioritizer_ranking_duration_seconds",
			Help:    "Time spent ranking a task list",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"path"},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioritizer_training_runs_total",
			Help: "Training attempts, by outcome",
		},
		[]string{"outcome"},
	)

	ModelLoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prioritizer_model_load_failures_total",
			Help: "Active models that could not be read or deserialized",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioritizer_model_cache_lookups_total",
			Help: "Model blob cache lookups, by level and result",
		},
		[]string{"level", "result"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioritizer_jobs_processed_total",
			Help: "Background jobs processed, by type and status",
		},
		[]string{"type", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

func RecordRanking(path string, duration time.Duration) {
	RankingRequests.WithLabelValues(path).Inc()
	RankingDuration.WithLabelValues(path).Observe(duration.Seconds())
}

func RecordTraining(outcome string) {
	TrainingRuns.WithLabelValues(outcome).Inc()
}

func RecordModelLoadFailure() {
	ModelLoadFailures.Inc()
}

// RecordCacheLookup counts a lookup at level ("l1" or "l2") with result
// "hit", "miss" or "error".
func RecordCacheLookup(level, result string) {
	CacheLookups.WithLabelValues(level, result).Inc()
}

func RecordJob(jobType, status string) {
	JobsProcessed.WithLabelValues(jobType, status).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the default prometheus registry.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
