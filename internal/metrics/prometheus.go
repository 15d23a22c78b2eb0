package metrics

import (
	"sync"

	"github.com/arloliu/subwatch/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so that constructing
// a collector never panics on duplicate registration.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	eventsRouted        *prometheus.CounterVec
	activations         *prometheus.CounterVec
	activationLatency   *prometheus.HistogramVec
	activationConflicts prometheus.Counter
	registrySize        prometheus.Gauge
	registryMutations   *prometheus.CounterVec
	deferred            *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "subwatch" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "subwatch"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.eventsRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "router",
			Name:      "events_total",
			Help:      "Total subscription change events routed by operation and outcome.",
		}, []string{"operation", "outcome"})

		p.activations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "activation",
			Name:      "decisions_total",
			Help:      "Total activation decisions by resulting action.",
		}, []string{"action"})

		p.activationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "activation",
			Name:      "duration_seconds",
			Help:      "Latency of applying an activation decision in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"action"})

		p.activationConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "activation",
			Name:      "conflicts_total",
			Help:      "Stale-version retries during status write-back.",
		})

		p.registrySize = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "subscriptions",
			Help:      "Current number of registered active subscriptions.",
		})

		p.registryMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "registry",
			Name:      "mutations_total",
			Help:      "Registry mutations by operation and whether they changed the registry.",
		}, []string{"op", "changed"})

		p.deferred = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "deferred",
			Name:      "scheduled_total",
			Help:      "Units of work by scheduling mode (inline, deferred, rejected, rolled_back).",
		}, []string{"mode"})

		p.reg.MustRegister(p.eventsRouted)
		p.reg.MustRegister(p.activations)
		p.reg.MustRegister(p.activationLatency)
		p.reg.MustRegister(p.activationConflicts)
		p.reg.MustRegister(p.registrySize)
		p.reg.MustRegister(p.registryMutations)
		p.reg.MustRegister(p.deferred)
	})
}

// RecordEventRouted increments the routed event counter.
func (p *PrometheusCollector) RecordEventRouted(operation string, outcome string) {
	p.ensureRegistered()
	p.eventsRouted.WithLabelValues(operation, outcome).Inc()
}

// RecordActivation counts the decision and observes its latency.
func (p *PrometheusCollector) RecordActivation(action string, duration float64) {
	p.ensureRegistered()
	p.activations.WithLabelValues(action).Inc()
	p.activationLatency.WithLabelValues(action).Observe(duration)
}

// RecordActivationConflict increments the conflict counter.
func (p *PrometheusCollector) RecordActivationConflict() {
	p.ensureRegistered()
	p.activationConflicts.Inc()
}

// RecordRegistrySize sets the registry size gauge.
func (p *PrometheusCollector) RecordRegistrySize(size int) {
	p.ensureRegistered()
	p.registrySize.Set(float64(size))
}

// RecordRegistryMutation increments the registry mutation counter.
func (p *PrometheusCollector) RecordRegistryMutation(op string, changed bool) {
	p.ensureRegistered()
	label := "false"
	if changed {
		label = "true"
	}
	p.registryMutations.WithLabelValues(op, label).Inc()
}

// RecordDeferred increments the scheduling mode counter.
func (p *PrometheusCollector) RecordDeferred(mode string) {
	p.ensureRegistered()
	p.deferred.WithLabelValues(mode).Inc()
}
