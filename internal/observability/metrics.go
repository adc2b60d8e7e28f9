// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Client metrics
	AuthAttempts      *prometheus.CounterVec
	RequestRetries    *prometheus.CounterVec
	RateLimitWaits    prometheus.Counter
	RateLimitWaitTime prometheus.Counter
	PollAttempts      prometheus.Counter

	// Simulation metrics
	SimulationsTotal   *prometheus.CounterVec
	SimulationDuration prometheus.Histogram
	BatchDuration      prometheus.Histogram
	BatchSize          prometheus.Histogram
	VariationsProduced prometheus.Counter

	// Generation metrics
	ExpressionsGenerated prometheus.Counter
	ExpressionsRejected  *prometheus.CounterVec
	LLMCalls             *prometheus.CounterVec
	LLMLatency           prometheus.Histogram

	// Submission metrics
	SubmissionsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "brain_alpha_lab"
	}

	return &Metrics{
		// Client metrics
		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "auth_attempts_total",
			Help:      "Total number of authentication attempts by outcome",
		}, []string{"outcome"}),
		RequestRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "request_retries_total",
			Help:      "Total number of request retries by HTTP method",
		}, []string{"method"}),
		RateLimitWaits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "rate_limit_waits_total",
			Help:      "Total number of server-directed rate-limit waits",
		}),
		RateLimitWaitTime: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "rate_limit_wait_seconds_total",
			Help:      "Total seconds spent waiting on Retry-After",
		}),
		PollAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "poll_attempts_total",
			Help:      "Total number of non-terminal job polling attempts",
		}),

		// Simulation metrics
		SimulationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Total number of simulations by terminal status",
		}, []string{"status"}),
		SimulationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Wall time of a single simulation from submit to terminal state",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 300, 600},
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a full simulation batch",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "batch_size",
			Help:      "Number of expressions per batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		VariationsProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "variations_produced_total",
			Help:      "Total number of parameter variations generated",
		}),

		// Generation metrics
		ExpressionsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "expressions_total",
			Help:      "Total number of candidate expressions produced",
		}),
		ExpressionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "expressions_rejected_total",
			Help:      "Total number of expressions rejected by validation, by reason",
		}, []string{"reason"}),
		LLMCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "llm_calls_total",
			Help:      "Total number of language-model calls by outcome",
		}, []string{"outcome"}),
		LLMLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "llm_latency_seconds",
			Help:      "Latency of language-model calls",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),

		// Submission metrics
		SubmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "submissions_total",
			Help:      "Total number of alpha submissions by outcome",
		}, []string{"outcome"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),

		// Health metrics
		LastSuccessfulBatch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of the last batch that finished without error",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAuth records an authentication attempt outcome (ok, rejected, error).
func RecordAuth(outcome string) {
	DefaultMetrics.AuthAttempts.WithLabelValues(outcome).Inc()
}

// RecordRetry records a request retry.
func RecordRetry(method string) {
	DefaultMetrics.RequestRetries.WithLabelValues(method).Inc()
}

// RecordRateLimitWait records a server-directed wait and its length.
func RecordRateLimitWait(seconds float64) {
	DefaultMetrics.RateLimitWaits.Inc()
	DefaultMetrics.RateLimitWaitTime.Add(seconds)
}

// RecordPollAttempt records one non-terminal polling attempt.
func RecordPollAttempt() {
	DefaultMetrics.PollAttempts.Inc()
}

// RecordSimulation records a finished simulation and its duration.
func RecordSimulation(status string, durationSeconds float64) {
	DefaultMetrics.SimulationsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SimulationDuration.Observe(durationSeconds)
}

// RecordBatch records a completed batch.
func RecordBatch(size int, durationSeconds float64, ok bool) {
	DefaultMetrics.BatchSize.Observe(float64(size))
	DefaultMetrics.BatchDuration.Observe(durationSeconds)
	if ok {
		DefaultMetrics.LastSuccessfulBatch.SetToCurrentTime()
	}
}

// RecordVariations records how many parameter variations a batch produced.
func RecordVariations(n int) {
	DefaultMetrics.VariationsProduced.Add(float64(n))
}

// RecordExpressionGenerated records one produced candidate expression.
func RecordExpressionGenerated() {
	DefaultMetrics.ExpressionsGenerated.Inc()
}

// RecordExpressionRejected records a validation rejection by reason.
func RecordExpressionRejected(reason string) {
	DefaultMetrics.ExpressionsRejected.WithLabelValues(reason).Inc()
}

// RecordLLMCall records a language-model call and its latency.
func RecordLLMCall(outcome string, seconds float64) {
	DefaultMetrics.LLMCalls.WithLabelValues(outcome).Inc()
	DefaultMetrics.LLMLatency.Observe(seconds)
}

// RecordSubmission records an alpha submission outcome.
func RecordSubmission(outcome string) {
	DefaultMetrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordDBQuery records a database query duration and error.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
