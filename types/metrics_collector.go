package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from request and worker goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	RouterMetrics
	ActivationMetrics
	RegistryMetrics
	DeferredMetrics
}

// RouterMetrics defines metrics for change-event routing.
type RouterMetrics interface {
	// RecordEventRouted records a routed subscription event.
	//
	// Parameters:
	//   - operation: Operation kind ("create", "update", "delete")
	//   - outcome: "ok", "invalid" or "error"
	RecordEventRouted(operation string, outcome string)
}

// ActivationMetrics defines metrics for activation decisions.
type ActivationMetrics interface {
	// RecordActivation records the action taken for one subscription decision.
	//
	// Parameters:
	//   - action: Action name (see Action.String)
	//   - duration: Time taken in seconds
	RecordActivation(action string, duration float64)

	// RecordActivationConflict records a stale-version retry during status write-back.
	RecordActivationConflict()
}

// RegistryMetrics defines metrics for the subscription registry.
type RegistryMetrics interface {
	// RecordRegistrySize sets the current number of registered subscriptions (gauge metric).
	RecordRegistrySize(size int)

	// RecordRegistryMutation records a registry mutation.
	//
	// Parameters:
	//   - op: "register", "refresh" or "unregister"
	//   - changed: false when the operation was an idempotent no-op
	RecordRegistryMutation(op string, changed bool)
}

// DeferredMetrics defines metrics for the deferred execution coordinator.
type DeferredMetrics interface {
	// RecordDeferred records how a unit of work was scheduled.
	//
	// Parameters:
	//   - mode: "inline", "deferred", "rejected" (pool refused) or "rolled_back"
	RecordDeferred(mode string)
}
