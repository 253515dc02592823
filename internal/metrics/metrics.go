// Package metrics provides Prometheus instrumentation for the AMLGuard
// pipeline.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amlguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PipelineRunsTotal counts pipeline executions by terminal outcome.
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlguard",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs by outcome (completed, failed, abandoned).",
		},
		[]string{"status"},
	)

	// PipelineDuration observes end-to-end pipeline latency.
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "amlguard",
		Name:      "pipeline_duration_seconds",
		Help:      "End-to-end pipeline duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// StageFallbacksTotal counts stages that degraded to fallback output.
	StageFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlguard",
			Name:      "stage_fallbacks_total",
			Help:      "Total pipeline stages that degraded to fallback values, by stage.",
		},
		[]string{"stage"},
	)

	// VerdictsTotal counts final verdicts by risk band.
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlguard",
			Name:      "verdicts_total",
			Help:      "Total risk verdicts by band.",
		},
		[]string{"band"},
	)

	// AlertsTotal counts classified alerts by type and responsible role.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlguard",
			Name:      "alerts_total",
			Help:      "Total classified alerts by alert type and responsible role.",
		},
		[]string{"type", "role"},
	)

	// JudgeCallsTotal counts rule-test judge calls by result.
	JudgeCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amlguard",
			Name:      "judge_calls_total",
			Help:      "Total rule-test judge calls by result (ok, degraded).",
		},
		[]string{"result"},
	)

	// PersistenceCommits counts successful compliance record commits.
	PersistenceCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "amlguard",
		Name:      "persistence_commits_total",
		Help:      "Total compliance records committed.",
	})

	// PersistenceFailures counts failed persistence attempts.
	PersistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "amlguard",
		Name:      "persistence_failures_total",
		Help:      "Total failed compliance record commits.",
	})

	// ActiveWebSocketClients tracks connected alert-feed clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "amlguard",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected alert-feed WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlguard", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlguard", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlguard", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "amlguard", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PipelineRunsTotal,
		PipelineDuration,
		StageFallbacksTotal,
		VerdictsTotal,
		AlertsTotal,
		JudgeCallsTotal,
		PersistenceCommits,
		PersistenceFailures,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus exposition handler as a gin handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// CollectDBStats publishes database pool and runtime gauges until ctx is
// cancelled. Call in a goroutine.
func CollectDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
			if db != nil {
				stats := db.Stats()
				DBOpenConnections.Set(float64(stats.OpenConnections))
				DBIdleConnections.Set(float64(stats.Idle))
				DBInUseConnections.Set(float64(stats.InUse))
			}
		}
	}
}
