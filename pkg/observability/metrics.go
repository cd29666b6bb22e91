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

	// Submission workflow metrics
	SubmissionsStagedTotal    *prometheus.CounterVec
	ReleasesCommittedTotal    prometheus.Counter
	ReleasesRetiredTotal      *prometheus.CounterVec
	AuthFailuresTotal         *prometheus.CounterVec

	// Storage metrics
	StoreErrorsTotal    *prometheus.CounterVec
	BlobUploadBytes     prometheus.Counter
	BlobOperationsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shelf_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SubmissionsStagedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_submissions_staged_total",
				Help: "Total number of staged plugin submissions",
			},
			[]string{"ready"},
		),
		ReleasesCommittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shelf_releases_committed_total",
				Help: "Total number of committed plugin releases",
			},
		),
		ReleasesRetiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_releases_retired_total",
				Help: "Total number of retire operations",
			},
			[]string{"mode"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_auth_failures_total",
				Help: "Total number of secret-key authentication failures",
			},
			[]string{"reason"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_store_errors_total",
				Help: "Total number of release-store errors",
			},
			[]string{"operation"},
		),
		BlobUploadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shelf_blob_upload_bytes_total",
				Help: "Total bytes uploaded to the blob store",
			},
		),
		BlobOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelf_blob_operations_total",
				Help: "Total number of blob-store operations",
			},
			[]string{"operation", "status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shelf_cache_hits_total",
				Help: "Total number of published-list cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shelf_cache_misses_total",
				Help: "Total number of published-list cache misses",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SubmissionsStagedTotal,
		m.ReleasesCommittedTotal,
		m.ReleasesRetiredTotal,
		m.AuthFailuresTotal,
		m.StoreErrorsTotal,
		m.BlobUploadBytes,
		m.BlobOperationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records a completed HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
