// Package metrics provides Prometheus instrumentation for shopsync runs.
//
// All collectors are registered with the default registry on package
// initialization, so importing the package is enough for them to appear on
// /metrics in serve mode or in a push to a Pushgateway after a one-shot run.
//
// # Basic Usage
//
//	// Count a fetched page
//	metrics.PagesFetched.WithLabelValues("customers").Inc()
//
//	// Time a sync pass
//	timer := metrics.NewTimer()
//	err := syncCustomers(ctx)
//	metrics.ObservePass("customers", timer.Stop(), err)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "shopsync"

var (
	// HTTPRequests counts requests to the Shopify API.
	// Labels: endpoint (customers/orders), code (HTTP status or "error")
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of Shopify API requests",
		},
		[]string{"endpoint", "code"},
	)

	// HTTPLatency tracks round trip latency of Shopify API requests in seconds
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Shopify API request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// PagesFetched counts pages successfully decoded per endpoint
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of result pages fetched",
		},
		[]string{"endpoint"},
	)

	// RecordsFetched counts records accumulated per endpoint
	RecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Total number of records fetched",
		},
		[]string{"endpoint"},
	)

	// FetchErrors counts page failures.
	// Labels: endpoint, type (transient_fetch/malformed_response/...)
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Total number of page fetch failures",
		},
		[]string{"endpoint", "type"},
	)

	// FetchRetries counts retried page requests
	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Total number of retried page requests",
		},
		[]string{"endpoint"},
	)

	// RowsWritten counts rows handed to the sink per destination
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Total number of rows written to the sink",
		},
		[]string{"destination"},
	)

	// RecordsSkipped counts records the transformers produced no row for
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Total number of records skipped by transformers",
		},
		[]string{"pass"},
	)

	// PassDuration tracks how long each sync pass takes.
	// Labels: pass (customers/orders), status (success/failure)
	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Sync pass duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"pass", "status"},
	)

	// LastSuccess records the unix time of the last successful pass
	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync pass",
		},
		[]string{"pass"},
	)

	// CircuitState exposes the Shopify client's circuit breaker state
	// (0 closed, 1 open, 2 half-open)
	CircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state of the Shopify client",
		},
	)
)

// ObservePass records the outcome of a sync pass
func ObservePass(pass string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		LastSuccess.WithLabelValues(pass).SetToCurrentTime()
	}
	PassDuration.WithLabelValues(pass, status).Observe(d.Seconds())
}

// Push sends the default registry to a Prometheus Pushgateway under the
// given job name. One-shot runs use it since nothing scrapes them.
func Push(gatewayURL, job string) error {
	return push.New(gatewayURL, job).
		Gatherer(prometheus.DefaultGatherer).
		Push()
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
