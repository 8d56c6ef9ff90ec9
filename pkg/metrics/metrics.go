// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	EventsBuffered      prometheus.Gauge
	EventsFlushedTotal  prometheus.Counter
	EventsFailedTotal   prometheus.Counter
	EventsDroppedTotal  *prometheus.CounterVec
	FlushesTotal        *prometheus.CounterVec
	LastFlushTimestamp  prometheus.Gauge
	BulkRetriesTotal    prometheus.Counter

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SuggestLatency     prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	ReindexJobsTotal    *prometheus.CounterVec
	ReindexDocsTotal    *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
		EventsBuffered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdc_events_buffered",
				Help: "Change events currently buffered awaiting flush.",
			},
		),
		EventsFlushedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cdc_events_flushed_total",
				Help: "Cumulative change events delivered to the search engine.",
			},
		),
		EventsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cdc_events_failed_total",
				Help: "Cumulative change events that exhausted bulk retries.",
			},
		),
		EventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_events_dropped_total",
				Help: "Notifications discarded before buffering, by reason.",
			},
			[]string{"reason"},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdc_flushes_total",
				Help: "Flush operations by status (success, partial, failed, skipped).",
			},
			[]string{"status"},
		),
		LastFlushTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdc_last_flush_timestamp_seconds",
				Help: "Unix time of the last completed flush.",
			},
		),
		BulkRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bulk_retries_total",
				Help: "Bulk submissions that needed at least one retry.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries by outcome (ok, validation, timeout, unavailable, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
			},
			[]string{"operation"},
		),
		SuggestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "suggest_latency_seconds",
				Help:    "Autocomplete latency in seconds, including cache hits.",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "suggest_cache_hits_total",
				Help: "Total suggestion cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "suggest_cache_misses_total",
				Help: "Total suggestion cache misses.",
			},
		),
		ReindexJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reindex_jobs_total",
				Help: "Reindex jobs by terminal status.",
			},
			[]string{"status"},
		),
		ReindexDocsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reindex_documents_total",
				Help: "Documents processed by reindex jobs, by result.",
			},
			[]string{"result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.EventsBuffered,
		m.EventsFlushedTotal,
		m.EventsFailedTotal,
		m.EventsDroppedTotal,
		m.FlushesTotal,
		m.LastFlushTimestamp,
		m.BulkRetriesTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SuggestLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReindexJobsTotal,
		m.ReindexDocsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
