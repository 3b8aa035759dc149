package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the hub.
type Metrics struct {
	// Backend metrics
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	circuitState    *prometheus.GaugeVec

	// Snapshot metrics
	sourceOutcomes   *prometheus.CounterVec
	assembleDuration prometheus.Histogram

	// Hub metrics
	connectionsActive prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
	broadcastsTotal   *prometheus.CounterVec
	sendFailures      prometheus.Counter
	scheduleFailures  *prometheus.CounterVec

	// Configuration reload metrics
	configReloads *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_backend_requests_total",
				Help: "Total number of backend requests by endpoint, method and outcome",
			},
			[]string{"endpoint", "method", "outcome"},
		),

		backendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "govhub_backend_request_duration_seconds",
				Help:    "Backend request latency in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),

		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "govhub_backend_circuit_state",
				Help: "Backend circuit breaker state (1 for the current state)",
			},
			[]string{"state"},
		),

		sourceOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_snapshot_source_outcomes_total",
				Help: "Snapshot slot outcomes by source",
			},
			[]string{"source", "outcome"},
		),

		assembleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "govhub_snapshot_assemble_duration_seconds",
				Help:    "Time to assemble a full snapshot",
				Buckets: prometheus.DefBuckets,
			},
		),

		connectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "govhub_connections_active",
				Help: "Number of registered subscriber connections",
			},
		),

		connectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_connections_total",
				Help: "Subscriber connection lifecycle events",
			},
			[]string{"event"},
		),

		broadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_broadcasts_total",
				Help: "Broadcasts published by message type",
			},
			[]string{"type"},
		),

		sendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "govhub_send_failures_total",
				Help: "Per-connection send failures that led to pruning",
			},
		),

		scheduleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_schedule_failures_total",
				Help: "Broadcasts that could not be handed to the publisher loop",
			},
			[]string{"reason"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_config_reloads_total",
				Help: "Total number of configuration reload attempts by status",
			},
			[]string{"status"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govhub_http_requests_total",
				Help: "Total number of operator API requests",
			},
			[]string{"method", "route", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "govhub_http_request_duration_seconds",
				Help:    "Operator API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		registry: registry,
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.backendRequests,
		m.backendLatency,
		m.circuitState,
		m.sourceOutcomes,
		m.assembleDuration,
		m.connectionsActive,
		m.connectionsTotal,
		m.broadcastsTotal,
		m.sendFailures,
		m.scheduleFailures,
		m.configReloads,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordBackendRequest records one logical backend call.
func (m *Metrics) RecordBackendRequest(endpoint, method, outcome string, duration time.Duration) {
	m.backendRequests.WithLabelValues(endpoint, method, outcome).Inc()
	m.backendLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// SetCircuitState marks state as the current breaker state.
func (m *Metrics) SetCircuitState(state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		value := 0.0
		if s == state {
			value = 1
		}
		m.circuitState.WithLabelValues(s).Set(value)
	}
}

// RecordSourceOutcome records whether a snapshot slot held a payload or an error.
func (m *Metrics) RecordSourceOutcome(source string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.sourceOutcomes.WithLabelValues(source, outcome).Inc()
}

// ObserveAssemble records the duration of one snapshot assembly.
func (m *Metrics) ObserveAssemble(duration time.Duration) {
	m.assembleDuration.Observe(duration.Seconds())
}

// RecordConnectionOpened records a newly registered subscriber.
func (m *Metrics) RecordConnectionOpened() {
	m.connectionsTotal.WithLabelValues("opened").Inc()
	m.connectionsActive.Inc()
}

// RecordConnectionClosed records a subscriber leaving the registry.
func (m *Metrics) RecordConnectionClosed(reason string) {
	m.connectionsTotal.WithLabelValues(reason).Inc()
	m.connectionsActive.Dec()
}

// RecordBroadcast records one published message and its failed deliveries.
func (m *Metrics) RecordBroadcast(messageType string, failures int) {
	m.broadcastsTotal.WithLabelValues(messageType).Inc()
	m.sendFailures.Add(float64(failures))
}

// RecordScheduleFailure records a broadcast rejected by the bridge.
func (m *Metrics) RecordScheduleFailure(reason string) {
	m.scheduleFailures.WithLabelValues(reason).Inc()
}

// RecordConfigReload records a configuration reload attempt.
func (m *Metrics) RecordConfigReload(status string) {
	m.configReloads.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an operator API request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
