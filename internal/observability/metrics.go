package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusEmitter is an EventEmitter that feeds every resilience event
// into a per-resource family of Prometheus collectors, replacing a
// hand-rolled exposition writer with the real client_golang registry.
type PrometheusEmitter struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	waitTimeMs     *prometheus.HistogramVec
	stateGauge     *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	evictionsTotal *prometheus.CounterVec
}

// stateValue maps a breaker state string to the numeric gauge value
// Prometheus dashboards conventionally graph (0=closed, 1=open, 2=half_open).
func stateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}

// NewPrometheusEmitter registers the resilience metric families on a
// fresh registry and returns the emitter driving them.
func NewPrometheusEmitter() *PrometheusEmitter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusEmitter{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resilientedge",
			Name:      "events_total",
			Help:      "Total resilience events emitted, by resource and event type.",
		}, []string{"resource", "type", "scope"}),
		waitTimeMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resilientedge",
			Name:      "acquire_wait_time_ms",
			Help:      "Bulkhead wait time observed on successful acquisitions, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"resource"}),
		stateGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resilientedge",
			Name:      "breaker_state",
			Help:      "Current breaker state per resource (0=closed, 1=open, 2=half_open).",
		}, []string{"resource"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resilientedge",
			Name:      "breaker_transitions_total",
			Help:      "Total breaker state transitions, by resource and resulting state.",
		}, []string{"resource", "state"}),
		evictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resilientedge",
			Name:      "registry_evictions_total",
			Help:      "Total resources evicted from the LRU registry.",
		}, []string{"resource"}),
	}
}

// Emit updates the metric families for a single resilience event.
func (m *PrometheusEmitter) Emit(event ResilienceEvent) {
	m.eventsTotal.WithLabelValues(event.ResourceName, string(event.Type), string(event.Scope)).Inc()

	switch event.Type {
	case EventSuccess:
		if event.WaitTimeMs != nil {
			m.waitTimeMs.WithLabelValues(event.ResourceName).Observe(*event.WaitTimeMs)
		}
	case EventStateChange:
		m.stateGauge.WithLabelValues(event.ResourceName).Set(stateValue(event.State))
		m.transitions.WithLabelValues(event.ResourceName, event.State).Inc()
	case EventEviction:
		m.evictionsTotal.WithLabelValues(event.ResourceName).Inc()
	}
}

// EmitAudit is a no-op: audit events are logged, not exported as metrics.
func (m *PrometheusEmitter) EmitAudit(AuditEvent) {}

// Handler returns the HTTP handler exposing this emitter's registry in
// the Prometheus exposition format.
func (m *PrometheusEmitter) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
