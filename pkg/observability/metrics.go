package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheFillsTotal     *prometheus.CounterVec
	CacheEvictionsTotal prometheus.Counter
	CacheEntries        prometheus.Gauge
	TierErrorsTotal     *prometheus.CounterVec

	// Invalidation metrics
	InvalidationsTotal *prometheus.CounterVec

	// Permission store metrics
	StoreQueriesTotal  *prometheus.CounterVec
	StoreQueryDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quillhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillhub_permission_cache_hits_total",
				Help: "Total number of permission cache hits per tier",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillhub_permission_cache_misses_total",
				Help: "Total number of permission cache misses per tier",
			},
			[]string{"tier"},
		),
		CacheFillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillhub_permission_cache_fills_total",
				Help: "Total number of cache fills after a store lookup",
			},
			[]string{"scope"},
		),
		CacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quillhub_permission_cache_evictions_total",
				Help: "Total number of L1 entries evicted or swept",
			},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quillhub_permission_cache_entries",
				Help: "Current number of entries held in the L1 cache",
			},
		),
		TierErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillhub_permission_cache_tier_errors_total",
				Help: "Total number of absorbed cache tier failures",
			},
			[]string{"tier", "operation"},
		),

		InvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillhub_permission_invalidations_total",
				Help: "Total number of invalidations applied, by scope and origin",
			},
			[]string{"scope", "origin"},
		),

		StoreQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillhub_permission_store_queries_total",
				Help: "Total number of permission store queries",
			},
			[]string{"operation", "status"},
		),
		StoreQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quillhub_permission_store_query_duration_seconds",
				Help:    "Permission store query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheFillsTotal,
		m.CacheEvictionsTotal,
		m.CacheEntries,
		m.TierErrorsTotal,
		m.InvalidationsTotal,
		m.StoreQueriesTotal,
		m.StoreQueryDuration,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStoreQuery records a permission store round-trip
func (m *Metrics) RecordStoreQuery(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreQueriesTotal.WithLabelValues(operation, status).Inc()
	m.StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
