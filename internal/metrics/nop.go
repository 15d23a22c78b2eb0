package metrics

import "github.com/arloliu/subwatch/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	metrics := metrics.NewNop()
//	eng, err := subwatch.NewEngine(&cfg, store, subwatch.WithMetrics(metrics))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RouterMetrics implementation

// RecordEventRouted discards the routed event metric.
func (n *NopMetrics) RecordEventRouted(_ /* operation */, _ /* outcome */ string) {
	// No-op
}

// ActivationMetrics implementation

// RecordActivation discards the activation metric.
func (n *NopMetrics) RecordActivation(_ /* action */ string, _ /* duration */ float64) {
	// No-op
}

// RecordActivationConflict discards the activation conflict metric.
func (n *NopMetrics) RecordActivationConflict() {
	// No-op
}

// RegistryMetrics implementation

// RecordRegistrySize discards the registry size metric.
func (n *NopMetrics) RecordRegistrySize(_ /* size */ int) {
	// No-op
}

// RecordRegistryMutation discards the registry mutation metric.
func (n *NopMetrics) RecordRegistryMutation(_ /* op */ string, _ /* changed */ bool) {
	// No-op
}

// DeferredMetrics implementation

// RecordDeferred discards the deferred scheduling metric.
func (n *NopMetrics) RecordDeferred(_ /* mode */ string) {
	// No-op
}
