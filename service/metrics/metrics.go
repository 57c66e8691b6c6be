package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Payment lifecycle metrics
	draftsBuiltTotal        *prometheus.CounterVec
	broadcastResubmitsTotal prometheus.Counter
	confirmationsTotal      *prometheus.CounterVec
	paymentsValidatedTotal  *prometheus.CounterVec
	paymentPipelineDuration prometheus.Histogram
	grantsPublishedTotal    prometheus.Counter
	grantPublishDuration    prometheus.Histogram

	// Database metrics
	dbOperationsTotal *prometheus.CounterVec
	dbQueryDuration   *prometheus.HistogramVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		draftsBuiltTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_drafts_built_total",
				Help: "Total number of draft transactions built, by status",
			},
			[]string{"status"},
		),
		broadcastResubmitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_broadcast_resubmits_total",
				Help: "Total number of signed transaction resubmissions after a confirmation timeout",
			},
		),
		confirmationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_confirmations_total",
				Help: "Total number of broadcast outcomes, by status (confirmed, expired, error)",
			},
			[]string{"status"},
		),
		paymentsValidatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_validated_total",
				Help: "Total number of settled transfers cross-checked against dataset terms, by status",
			},
			[]string{"status"},
		),
		paymentPipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payment_pipeline_duration_seconds",
				Help:    "End-to-end duration of the send pipeline (broadcast through ledger insert)",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		grantsPublishedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "permission_grants_published_total",
				Help: "Total number of permission records published to the message store",
			},
		),
		grantPublishDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "permission_grant_publish_duration_seconds",
				Help:    "Duration of individual permission record publishes",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
		),

		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by handler, method, and status class",
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
			},
			[]string{"handler", "method"},
		),
	}
}

// RecordRPCCall records a Solana RPC call with its duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordDraftBuilt records a draft transaction build attempt.
func (m *Metrics) RecordDraftBuilt(status string) {
	m.draftsBuiltTotal.WithLabelValues(status).Inc()
}

// RecordBroadcastResubmit records one resubmission of the signed payload.
func (m *Metrics) RecordBroadcastResubmit() {
	m.broadcastResubmitsTotal.Inc()
}

// RecordConfirmation records the terminal outcome of a broadcast loop.
func (m *Metrics) RecordConfirmation(status string) {
	m.confirmationsTotal.WithLabelValues(status).Inc()
}

// RecordPaymentValidated records a settlement validation outcome.
func (m *Metrics) RecordPaymentValidated(status string) {
	m.paymentsValidatedTotal.WithLabelValues(status).Inc()
}

// RecordPipelineDuration records the end-to-end send pipeline duration.
func (m *Metrics) RecordPipelineDuration(seconds float64) {
	m.paymentPipelineDuration.Observe(seconds)
}

// RecordGrantsPublished records successfully published permission records.
func (m *Metrics) RecordGrantsPublished(count int) {
	m.grantsPublishedTotal.Add(float64(count))
}

// RecordGrantPublishDuration records the duration of a single publish.
func (m *Metrics) RecordGrantPublishDuration(seconds float64) {
	m.grantPublishDuration.Observe(seconds)
}

// RecordDBOperation records a database operation with its duration.
func (m *Metrics) RecordDBOperation(operation, status string, duration float64) {
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	m.httpRequestsTotal.WithLabelValues(handler, method, statusClass(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(duration)
}

// statusClass buckets a status code into its class ("2xx", "4xx", ...).
func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
