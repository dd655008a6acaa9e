package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

// Metric names reported outside the session itself
const (
	MetricEventsTotal    = "events_total"
	MetricSessionState   = "session_state"
	MetricStoredMessages = "stored_messages"
)

// PrometheusMetricsCollector implements smpp.MetricsCollector using Prometheus
type PrometheusMetricsCollector struct {
	registry *prometheus.Registry
	logger   smpp.Logger

	// Counters
	pdusSent          *prometheus.CounterVec
	pdusReceived      *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	requestsRejected  *prometheus.CounterVec
	malformedPDUs     *prometheus.CounterVec
	unhandledCommands *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec

	// Gauges
	pendingRequests *prometheus.GaugeVec
	sessionState    *prometheus.GaugeVec
	storedMessages  *prometheus.GaugeVec

	// Histograms
	responseLatency *prometheus.HistogramVec

	// HTTP server for metrics endpoint
	server *http.Server
}

// NewPrometheusMetricsCollector creates a collector with its own registry.
// Metric names are prefixed with namespace when it is not empty.
func NewPrometheusMetricsCollector(namespace string, logger smpp.Logger) *PrometheusMetricsCollector {
	registry := prometheus.NewRegistry()

	pmc := &PrometheusMetricsCollector{
		registry: registry,
		logger:   logger,
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	pmc.pdusSent = counter("pdus_sent_total", "Total number of PDUs written to the SMSC", "command")
	pmc.pdusReceived = counter("pdus_received_total", "Total number of PDUs read from the SMSC", "command")
	pmc.stateTransitions = counter("state_transitions_total", "Total number of session state transitions", "from", "to")
	pmc.requestsRejected = counter("requests_rejected_total", "Total number of requests refused by the SMSC", "command")
	pmc.malformedPDUs = counter("malformed_pdus_total", "Total number of inbound PDUs that failed to decode")
	pmc.unhandledCommands = counter("unhandled_commands_total", "Total number of inbound PDUs without a handler", "command")
	pmc.eventsTotal = counter("events_total", "Total number of published events", "event_type")

	pmc.pendingRequests = gauge("pending_requests", "Number of requests awaiting a response")
	pmc.sessionState = gauge("session_state", "Current session state (0 closed, 1 open, 2-4 bound)")
	pmc.storedMessages = gauge("stored_messages", "Number of inbound messages held in the store")

	pmc.responseLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_latency_seconds",
			Help:      "Time between writing a request and reading its response",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"command"},
	)

	// Register all metrics
	registry.MustRegister(
		pmc.pdusSent,
		pmc.pdusReceived,
		pmc.stateTransitions,
		pmc.requestsRejected,
		pmc.malformedPDUs,
		pmc.unhandledCommands,
		pmc.eventsTotal,
		pmc.pendingRequests,
		pmc.sessionState,
		pmc.storedMessages,
		pmc.responseLatency,
	)

	return pmc
}

// Registry returns the registry the collector reports to.
func (p *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return p.registry
}

// IncCounter increments a counter metric
func (p *PrometheusMetricsCollector) IncCounter(name string, labels map[string]string) {
	var vec *prometheus.CounterVec
	var keys []string

	switch name {
	case smpp.MetricPDUsSent:
		vec, keys = p.pdusSent, commandLabel
	case smpp.MetricPDUsReceived:
		vec, keys = p.pdusReceived, commandLabel
	case smpp.MetricStateTransitions:
		vec, keys = p.stateTransitions, transitionLabels
	case smpp.MetricRequestsRejected:
		vec, keys = p.requestsRejected, commandLabel
	case smpp.MetricMalformedPDUs:
		vec = p.malformedPDUs
	case smpp.MetricUnhandledCommands:
		vec, keys = p.unhandledCommands, commandLabel
	case MetricEventsTotal:
		vec, keys = p.eventsTotal, eventLabel
	default:
		p.unknown("counter", name)
		return
	}
	vec.With(pick(keys, labels)).Inc()
}

// SetGauge sets a gauge metric
func (p *PrometheusMetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	switch name {
	case smpp.MetricPendingRequests:
		p.pendingRequests.With(nil).Set(value)
	case MetricSessionState:
		p.sessionState.With(nil).Set(value)
	case MetricStoredMessages:
		p.storedMessages.With(nil).Set(value)
	default:
		p.unknown("gauge", name)
	}
}

// ObserveHistogram observes a value for a histogram metric
func (p *PrometheusMetricsCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
	switch name {
	case smpp.MetricResponseLatency:
		p.responseLatency.With(pick(commandLabel, labels)).Observe(value)
	default:
		p.unknown("histogram", name)
	}
}

// RecordDuration records a duration in seconds on the named histogram
func (p *PrometheusMetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
	p.ObserveHistogram(name, duration.Seconds(), labels)
}

func (p *PrometheusMetricsCollector) unknown(kind, name string) {
	if p.logger != nil {
		p.logger.Debug("Unknown metric ignored", "kind", kind, "name", name)
	}
}

var (
	commandLabel     = []string{"command"}
	transitionLabels = []string{"from", "to"}
	eventLabel       = []string{"event_type"}
)

// pick returns exactly the labels named in keys, so callers passing extra or
// missing labels never make With panic.
func pick(keys []string, labels map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(keys))
	for _, k := range keys {
		out[k] = labels[k]
	}
	return out
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusMetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// StartServer starts the HTTP server for the metrics endpoint
func (p *PrometheusMetricsCollector) StartServer(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, p.Handler())

	p.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if p.logger != nil {
				p.logger.Error("Metrics server failed", "port", port, "error", err)
			}
		}
	}()
}

// Stop stops the HTTP server
func (p *PrometheusMetricsCollector) Stop() error {
	if p.server != nil {
		return p.server.Close()
	}
	return nil
}

// NoOpMetricsCollector provides a no-op implementation for when metrics are disabled
type NoOpMetricsCollector struct{}

// NewNoOpMetricsCollector creates a no-op metrics collector
func NewNoOpMetricsCollector() *NoOpMetricsCollector {
	return &NoOpMetricsCollector{}
}

// IncCounter is a no-op
func (n *NoOpMetricsCollector) IncCounter(name string, labels map[string]string) {}

// SetGauge is a no-op
func (n *NoOpMetricsCollector) SetGauge(name string, value float64, labels map[string]string) {}

// ObserveHistogram is a no-op
func (n *NoOpMetricsCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
}

// RecordDuration is a no-op
func (n *NoOpMetricsCollector) RecordDuration(name string, duration time.Duration, labels map[string]string) {
}

var (
	_ smpp.MetricsCollector = (*PrometheusMetricsCollector)(nil)
	_ smpp.MetricsCollector = (*NoOpMetricsCollector)(nil)
)
