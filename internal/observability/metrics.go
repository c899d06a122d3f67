// Package observability exposes the resilience layer's numeric snapshots
// through a Prometheus registry: pool occupancy, batcher throughput, cache
// hit rates, and rate-limiter verdicts.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
	"jobboard-backend/internal/middleware"
)

// Collector holds all Prometheus metrics for the application.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Pool metrics
	PoolTotal   prometheus.Gauge
	PoolActive  prometheus.Gauge
	PoolIdle    prometheus.Gauge
	PoolWaiting prometheus.Gauge

	// Batcher metrics
	BatchPending   prometheus.Gauge
	BatchFlushes   prometheus.Gauge
	BatchProcessed prometheus.Gauge
	BatchFailures  prometheus.Gauge

	// Cache metrics
	CacheHits      prometheus.Gauge
	CacheMisses    prometheus.Gauge
	CacheEvictions prometheus.Gauge
	CacheItems     prometheus.Gauge
	CacheHitRate   prometheus.Gauge

	// Rate limiter metrics
	RateAllowed *prometheus.GaugeVec
	RateDenied  *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry so tests never
// collide on duplicate registrations.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PoolTotal:      newGauge(namespace, "pool_connections_total", "Connections created by the pool"),
		PoolActive:     newGauge(namespace, "pool_connections_active", "Connections currently leased"),
		PoolIdle:       newGauge(namespace, "pool_connections_idle", "Connections free for lease"),
		PoolWaiting:    newGauge(namespace, "pool_waiters", "Callers waiting for a connection"),
		BatchPending:   newGauge(namespace, "batch_items_pending", "Items awaiting a batch flush"),
		BatchFlushes:   newGauge(namespace, "batch_flushes_total", "Batch flushes executed"),
		BatchProcessed: newGauge(namespace, "batch_items_processed_total", "Batch items processed"),
		BatchFailures:  newGauge(namespace, "batch_item_failures_total", "Batch items that failed"),
		CacheHits:      newGauge(namespace, "cache_hits_total", "Query cache hits"),
		CacheMisses:    newGauge(namespace, "cache_misses_total", "Query cache misses"),
		CacheEvictions: newGauge(namespace, "cache_evictions_total", "Query cache LRU evictions"),
		CacheItems:     newGauge(namespace, "cache_items", "Live query cache entries"),
		CacheHitRate:   newGauge(namespace, "cache_hit_rate", "Query cache hit rate"),
		RateAllowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_allowed_total",
			Help:      "Requests allowed by the rate limiter",
		}, []string{"policy"}),
		RateDenied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_denied_total",
			Help:      "Requests denied by the rate limiter",
		}, []string{"policy"}),
	}

	registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.PoolTotal, c.PoolActive, c.PoolIdle, c.PoolWaiting,
		c.BatchPending, c.BatchFlushes, c.BatchProcessed, c.BatchFailures,
		c.CacheHits, c.CacheMisses, c.CacheEvictions, c.CacheItems, c.CacheHitRate,
		c.RateAllowed, c.RateDenied,
	)
	return c
}

func newGauge(namespace, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// Refresh copies the latest snapshots into the gauges. Called periodically
// from a background ticker and on metrics scrapes.
func (c *Collector) Refresh(pool persistence.PoolStats, batch persistence.BatcherStats, cacheStats cache.Stats, limiters []middleware.RateLimiterStats) {
	c.PoolTotal.Set(float64(pool.Total))
	c.PoolActive.Set(float64(pool.Active))
	c.PoolIdle.Set(float64(pool.Idle))
	c.PoolWaiting.Set(float64(pool.Waiting))

	c.BatchPending.Set(float64(batch.Pending))
	c.BatchFlushes.Set(float64(batch.Flushes))
	c.BatchProcessed.Set(float64(batch.Processed))
	c.BatchFailures.Set(float64(batch.Failures))

	c.CacheHits.Set(float64(cacheStats.Hits))
	c.CacheMisses.Set(float64(cacheStats.Misses))
	c.CacheEvictions.Set(float64(cacheStats.Evictions))
	c.CacheItems.Set(float64(cacheStats.Items))
	c.CacheHitRate.Set(cacheStats.HitRate)

	for _, s := range limiters {
		c.RateAllowed.WithLabelValues(s.Policy).Set(float64(s.Allowed))
		c.RateDenied.WithLabelValues(s.Policy).Set(float64(s.Denied))
	}
}

// Handler returns the /metrics endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Instrument records request count and latency for every handled request.
func (c *Collector) Instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapper.status)).Inc()
			c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
