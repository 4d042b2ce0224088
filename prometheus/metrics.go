package prometheus

import (
	"shell-service/pkg/config"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthErrorsCounter   prometheus.CounterVec

	// Canvas API metrics
	CanvasRequestDuration prometheus.HistogramVec
	CanvasErrorsCounter   prometheus.CounterVec
	TokenRefreshCounter   prometheus.CounterVec

	// Account discovery metrics
	DiscoveryDuration      prometheus.Histogram
	DiscoveredAccountsLast prometheus.Gauge

	// Batch metrics
	BatchesSubmittedCounter prometheus.Counter
	BatchQueueDepth         prometheus.Gauge
	ShellOutcomesCounter    prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration prometheus.HistogramVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	// Use metric prefix from configuration
	prefix := config.Metrics.Prefix

	// HTTP request metrics
	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration
	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Authentication metrics
	AuthAttemptsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
	)

	AuthErrorsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"reason"},
	)

	// Canvas API metrics
	CanvasRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_canvas_request_duration_seconds",
			Help:    "Duration of outbound Canvas API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CanvasErrorsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_canvas_errors_total",
			Help: "Total number of failed Canvas API calls",
		},
		[]string{"operation"},
	)

	TokenRefreshCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_canvas_token_refresh_total",
			Help: "Total number of Canvas OAuth token refreshes",
		},
		[]string{"outcome"},
	)

	// Account discovery metrics
	DiscoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_discovery_duration_seconds",
			Help:    "Duration of full account tree discovery in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DiscoveredAccountsLast = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_discovered_accounts",
			Help: "Number of accounts found by the most recent discovery",
		},
	)

	// Batch metrics
	BatchesSubmittedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_batches_submitted_total",
			Help: "Total number of course shell batches submitted",
		},
	)

	BatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_batch_queue_depth",
			Help: "Number of batches waiting in the runner queue",
		},
	)

	ShellOutcomesCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_shell_outcomes_total",
			Help: "Total number of course shell creations by outcome",
		},
		[]string{"outcome"},
	)

	// Database operation metrics
	DbOperationDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DbOperationDuration.WithLabelValues(operationType).Observe(duration)
	}
}

// TrackCanvasRequest records the duration of an outbound Canvas call
func TrackCanvasRequest(operation string) func(startTime time.Time) {
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		CanvasRequestDuration.WithLabelValues(operation).Observe(duration)
	}
}

// RecordAuthError increments the counter for authentication errors
func RecordAuthError(reason string) {
	AuthErrorsCounter.WithLabelValues(reason).Inc()
}

// RecordShellOutcome increments the counter for shell creation outcomes
func RecordShellOutcome(outcome string) {
	ShellOutcomesCounter.WithLabelValues(outcome).Inc()
}
