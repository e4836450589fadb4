// Package metrics provides metrics collection and reporting for logwardend.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Prometheus metric labels
const (
	labelEndpoint = "endpoint"
	labelStatus   = "status"
	labelFormat   = "format_tag"
	labelStrategy = "strategy"
)

// Metrics tracks operational metrics with both internal counters and
// Prometheus metrics.
type Metrics struct {
	// Request metrics (internal atomic counters for fast access)
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64

	// Latency tracking
	totalLatency atomic.Int64 // microseconds
	latencyCount atomic.Uint64
	maxLatency   atomic.Int64
	minLatency   atomic.Int64

	// Rate limiting metrics
	rateLimitHits atomic.Uint64

	// Ingestion metrics
	linesIngested   atomic.Uint64
	parseFailures   atomic.Uint64
	minerFallbacks  atomic.Uint64
	anomaliesRaised atomic.Uint64

	// Error tracking by status code
	errorsMu       sync.RWMutex
	errorsByStatus map[int]uint64

	// Per-endpoint tracking
	endpointsMu      sync.RWMutex
	endpointCalls    map[string]uint64
	endpointErrors   map[string]uint64
	endpointLatency  map[string]int64 // microseconds

	logger *zap.Logger

	// Prometheus metrics
	promRequestsTotal      prometheus.Counter
	promRequestsSuccessful prometheus.Counter
	promRequestsFailed     prometheus.Counter
	promRateLimitHits      prometheus.Counter
	promRequestLatency     prometheus.Histogram
	promErrorsByStatus     *prometheus.CounterVec

	promEndpointCalls   *prometheus.CounterVec
	promEndpointErrors  *prometheus.CounterVec
	promEndpointLatency *prometheus.HistogramVec

	promLinesIngested  *prometheus.CounterVec
	promParseFailures  prometheus.Counter
	promMinerFallbacks prometheus.Counter
	promAnomalies      *prometheus.CounterVec
}

// New creates a new metrics tracker with Prometheus integration.
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		errorsByStatus:  make(map[int]uint64),
		endpointCalls:   make(map[string]uint64),
		endpointErrors:  make(map[string]uint64),
		endpointLatency: make(map[string]int64),
		logger:          logger,

		promRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "requests_total",
			Help:      "Total number of HTTP API requests handled",
		}),
		promRequestsSuccessful: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "requests_successful_total",
			Help:      "Total number of successful HTTP API requests",
		}),
		promRequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "requests_failed_total",
			Help:      "Total number of failed HTTP API requests",
		}),
		promRateLimitHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by rate limiting",
		}),
		promRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "logwarden",
			Name:      "request_latency_seconds",
			Help:      "HTTP API request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		promErrorsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "errors_by_status_total",
			Help:      "Errors by HTTP status code",
		}, []string{labelStatus}),

		promEndpointCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "endpoint_calls_total",
			Help:      "Total number of calls per API endpoint",
		}, []string{labelEndpoint}),
		promEndpointErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "endpoint_errors_total",
			Help:      "Total number of errors per API endpoint",
		}, []string{labelEndpoint}),
		promEndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "logwarden",
			Name:      "endpoint_latency_seconds",
			Help:      "Per-endpoint latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{labelEndpoint}),

		promLinesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "lines_ingested_total",
			Help:      "Total number of log lines ingested, labeled by detected format",
		}, []string{labelFormat}),
		promParseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "parse_failures_total",
			Help:      "Total number of lines that fell back to format_tag unknown",
		}),
		promMinerFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "miner_fallbacks_total",
			Help:      "Total number of messages the template miner could not cluster",
		}),
		promAnomalies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logwarden",
			Name:      "anomalies_total",
			Help:      "Total number of anomalies raised, labeled by detection strategy",
		}, []string{labelStrategy}),
	}

	m.minLatency.Store(int64(time.Hour))

	return m
}

// RecordRequest records an HTTP request's outcome.
func (m *Metrics) RecordRequest(success bool, latency time.Duration, statusCode int) {
	m.totalRequests.Add(1)
	m.promRequestsTotal.Inc()
	m.promRequestLatency.Observe(latency.Seconds())

	if success {
		m.successfulRequests.Add(1)
		m.promRequestsSuccessful.Inc()
	} else {
		m.failedRequests.Add(1)
		m.promRequestsFailed.Inc()
		m.recordErrorStatus(statusCode)
	}

	m.recordLatency(latency)
}

// RecordRateLimitHit records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimitHit() {
	m.rateLimitHits.Add(1)
	m.promRateLimitHits.Inc()
}

// RecordEndpoint records one call to a named HTTP endpoint.
func (m *Metrics) RecordEndpoint(endpoint string, success bool, latency time.Duration) {
	m.endpointsMu.Lock()
	m.endpointCalls[endpoint]++
	if !success {
		m.endpointErrors[endpoint]++
	}
	if latency > 0 && m.endpointCalls[endpoint] > 0 {
		current := m.endpointLatency[endpoint]
		count := float64(m.endpointCalls[endpoint])
		avg := (float64(current)*(count-1) + float64(latency.Microseconds())) / count
		m.endpointLatency[endpoint] = int64(avg)
	}
	m.endpointsMu.Unlock()

	m.promEndpointCalls.WithLabelValues(endpoint).Inc()
	m.promEndpointLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
	if !success {
		m.promEndpointErrors.WithLabelValues(endpoint).Inc()
	}
}

// RecordLineIngested records one successfully ingested log line.
func (m *Metrics) RecordLineIngested(formatTag string) {
	m.linesIngested.Add(1)
	m.promLinesIngested.WithLabelValues(formatTag).Inc()
}

// RecordParseFailure records a line that could not be classified.
func (m *Metrics) RecordParseFailure() {
	m.parseFailures.Add(1)
	m.promParseFailures.Inc()
}

// RecordMinerFallback records a message the template miner degraded on.
func (m *Metrics) RecordMinerFallback() {
	m.minerFallbacks.Add(1)
	m.promMinerFallbacks.Inc()
}

// RecordAnomaly records one anomaly raised by a detection strategy.
func (m *Metrics) RecordAnomaly(strategy string) {
	m.anomaliesRaised.Add(1)
	m.promAnomalies.WithLabelValues(strategy).Inc()
}

func (m *Metrics) recordLatency(latency time.Duration) {
	latencyUs := latency.Microseconds()

	m.totalLatency.Add(latencyUs)
	m.latencyCount.Add(1)

	for {
		currentMax := m.maxLatency.Load()
		if latencyUs <= currentMax {
			break
		}
		if m.maxLatency.CompareAndSwap(currentMax, latencyUs) {
			break
		}
	}

	for {
		currentMin := m.minLatency.Load()
		if latencyUs >= currentMin {
			break
		}
		if m.minLatency.CompareAndSwap(currentMin, latencyUs) {
			break
		}
	}
}

func (m *Metrics) recordErrorStatus(statusCode int) {
	if statusCode == 0 {
		return
	}

	m.errorsMu.Lock()
	m.errorsByStatus[statusCode]++
	m.errorsMu.Unlock()

	m.promErrorsByStatus.WithLabelValues(fmt.Sprintf("%d", statusCode)).Inc()
}

// GetStats returns a snapshot of current statistics.
func (m *Metrics) GetStats() Stats {
	m.errorsMu.RLock()
	errorsByStatus := make(map[int]uint64, len(m.errorsByStatus))
	for k, v := range m.errorsByStatus {
		errorsByStatus[k] = v
	}
	m.errorsMu.RUnlock()

	m.endpointsMu.RLock()
	endpointCalls := make(map[string]uint64, len(m.endpointCalls))
	endpointErrors := make(map[string]uint64, len(m.endpointErrors))
	endpointLatency := make(map[string]time.Duration, len(m.endpointLatency))
	for k, v := range m.endpointCalls {
		endpointCalls[k] = v
	}
	for k, v := range m.endpointErrors {
		endpointErrors[k] = v
	}
	for k, v := range m.endpointLatency {
		endpointLatency[k] = time.Duration(v) * time.Microsecond
	}
	m.endpointsMu.RUnlock()

	totalReq := m.totalRequests.Load()
	latencyCount := m.latencyCount.Load()

	var avgLatency time.Duration
	if latencyCount > 0 {
		avgLatencyMicros := float64(m.totalLatency.Load()) / float64(latencyCount)
		avgLatency = time.Duration(avgLatencyMicros) * time.Microsecond
	}

	return Stats{
		TotalRequests:      totalReq,
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		RateLimitHits:      m.rateLimitHits.Load(),
		LinesIngested:      m.linesIngested.Load(),
		ParseFailures:      m.parseFailures.Load(),
		MinerFallbacks:     m.minerFallbacks.Load(),
		AnomaliesRaised:    m.anomaliesRaised.Load(),
		AverageLatency:     avgLatency,
		MaxLatency:         time.Duration(m.maxLatency.Load()) * time.Microsecond,
		MinLatency:         time.Duration(m.minLatency.Load()) * time.Microsecond,
		ErrorsByStatus:     errorsByStatus,
		EndpointCalls:      endpointCalls,
		EndpointErrors:     endpointErrors,
		EndpointLatency:    endpointLatency,
	}
}

// LogStats logs current statistics at info level.
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	var errorRate float64
	if stats.TotalRequests > 0 {
		errorRate = float64(stats.FailedRequests) / float64(stats.TotalRequests) * 100
	}

	m.logger.Info("operational metrics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("successful_requests", stats.SuccessfulRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Float64("error_rate_pct", errorRate),
		zap.Uint64("rate_limit_hits", stats.RateLimitHits),
		zap.Uint64("lines_ingested", stats.LinesIngested),
		zap.Uint64("parse_failures", stats.ParseFailures),
		zap.Uint64("miner_fallbacks", stats.MinerFallbacks),
		zap.Uint64("anomalies_raised", stats.AnomaliesRaised),
		zap.Duration("avg_latency", stats.AverageLatency),
		zap.Duration("max_latency", stats.MaxLatency),
		zap.Duration("min_latency", stats.MinLatency),
		zap.Any("errors_by_status", stats.ErrorsByStatus),
	)
}

// Stats represents a point-in-time metrics snapshot.
type Stats struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	RateLimitHits      uint64
	LinesIngested      uint64
	ParseFailures      uint64
	MinerFallbacks     uint64
	AnomaliesRaised    uint64
	AverageLatency     time.Duration
	MaxLatency         time.Duration
	MinLatency         time.Duration
	ErrorsByStatus     map[int]uint64
	EndpointCalls      map[string]uint64
	EndpointErrors     map[string]uint64
	EndpointLatency    map[string]time.Duration
}

// GetPrometheusRegistry returns the default Prometheus registry, for use
// with promhttp.HandlerFor.
func GetPrometheusRegistry() *prometheus.Registry {
	return prometheus.DefaultRegisterer.(*prometheus.Registry)
}
