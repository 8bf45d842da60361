package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Store operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Transfer metrics
	TransfersTotal   *prometheus.CounterVec
	TransferDuration *prometheus.HistogramVec
	TransferBytes    *prometheus.HistogramVec

	// Artifact metrics
	ArtifactsActive prometheus.Gauge
	CleanupFailures prometheus.Counter

	registry  *prometheus.Registry
	startTime time.Time

	// Snapshot for the health endpoint - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint
type Snapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	Downloads       int64   `json:"downloads"`
	Uploads         int64   `json:"uploads"`
	ActiveArtifacts int64   `json:"active_artifacts"`
	CleanupFailures int64   `json:"cleanup_failures"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folderstore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folderstore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folderstore_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folderstore_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Store operation metrics
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folderstore_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folderstore_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		// Transfer metrics
		TransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folderstore_transfers_total",
				Help: "Total number of folder transfers",
			},
			[]string{"direction", "format", "status"},
		),
		TransferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folderstore_transfer_duration_seconds",
				Help:    "Folder transfer duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"direction", "format"},
		),
		TransferBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folderstore_transfer_bytes",
				Help:    "Archive size of folder transfers in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
			},
			[]string{"direction", "format"},
		),

		// Artifact metrics
		ArtifactsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "folderstore_artifacts_active",
				Help: "Number of temporary archive artifacts on disk",
			},
		),
		CleanupFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "folderstore_artifact_cleanup_failures_total",
				Help: "Total number of temporary artifacts that could not be removed",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "folderstore_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		m.uptime,
	)

	return m
}

func (m *Metrics) uptime() float64 {
	return time.Since(m.startTime).Seconds()
}

// Registry returns the registry all metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records a store operation
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransfer records a finished download or upload. size is the archive
// size in bytes, zero when the transfer failed before it was known.
func (m *Metrics) RecordTransfer(direction, format, status string, duration time.Duration, size int64) {
	m.TransfersTotal.WithLabelValues(direction, format, status).Inc()
	m.TransferDuration.WithLabelValues(direction, format).Observe(duration.Seconds())
	if size > 0 {
		m.TransferBytes.WithLabelValues(direction, format).Observe(float64(size))
	}

	m.mu.Lock()
	switch direction {
	case "download":
		m.snapshot.Downloads++
	case "upload":
		m.snapshot.Uploads++
	}
	m.mu.Unlock()
}

// IncArtifactsActive marks a temporary artifact as created
func (m *Metrics) IncArtifactsActive() {
	m.ArtifactsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveArtifacts++
	m.mu.Unlock()
}

// DecArtifactsActive marks a temporary artifact as released
func (m *Metrics) DecArtifactsActive() {
	m.ArtifactsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveArtifacts--
	m.mu.Unlock()
}

// IncCleanupFailures counts an artifact left on disk
func (m *Metrics) IncCleanupFailures() {
	m.CleanupFailures.Inc()
	m.mu.Lock()
	m.snapshot.CleanupFailures++
	m.mu.Unlock()
}

// Snapshot returns the current tracked values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = m.uptime()
	return s
}
