package subwatch

import (
	"context"

	"github.com/arloliu/subwatch/registry"
	"github.com/arloliu/subwatch/txn"
	"go.opentelemetry.io/otel/trace"
)

// Option configures an Engine with optional dependencies.
type Option func(*engineOptions)

// engineOptions holds optional Engine configuration.
type engineOptions struct {
	hooks          *Hooks
	metrics        MetricsCollector
	logger         Logger
	tracerProvider trace.TracerProvider
	probe          txn.Probe
	canon          Canonicalizer
	changes        ChangeSource
	registry       *registry.Registry
	syncWait       bool
	errorHandler   func(ctx context.Context, err error)
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	hooks := &subwatch.Hooks{
//	    OnActivated: func(ctx context.Context, sub subwatch.CanonicalSubscription) error {
//	        return notifyOwner(sub.ID)
//	    },
//	}
//	engine, err := subwatch.NewEngine(cfg, store, subwatch.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *engineOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation, see NewPrometheusMetrics
//
// Returns:
//   - Option: Functional option for NewEngine
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *engineOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation, for example logging.NewSlog(slog.Default())
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	engine, err := subwatch.NewEngine(cfg, store, subwatch.WithLogger(logging.NewSlogDefault()))
func WithLogger(logger Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for routing and activation spans.
//
// Defaults to otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *engineOptions) {
		o.tracerProvider = tp
	}
}

// WithProbe sets how the engine detects an enclosing transaction.
//
// Defaults to txn.ContextProbe, which looks for a txn scope in the request context.
// A probe that also implements txn.RollbackNotifier gets rolled-back work counted.
//
// Parameters:
//   - probe: Transaction probe and commit-hook registrar
//
// Returns:
//   - Option: Functional option for NewEngine
func WithProbe(probe txn.Probe) Option {
	return func(o *engineOptions) {
		o.probe = probe
	}
}

// WithCanonicalizer replaces the JSON canonicalizer.
func WithCanonicalizer(canon Canonicalizer) Option {
	return func(o *engineOptions) {
		o.canon = canon
	}
}

// WithChangeSource subscribes the engine to subscription changes made by other
// processes, for example store/kvstore's KV watch. The feed starts with Start and
// stops with Stop.
//
// Parameters:
//   - source: Change source delivering subscription events
//
// Returns:
//   - Option: Functional option for NewEngine
func WithChangeSource(source ChangeSource) Option {
	return func(o *engineOptions) {
		o.changes = source
	}
}

// WithRegistry injects the registry the engine maintains, so a dispatcher built
// elsewhere can share it. Defaults to a fresh registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *engineOptions) {
		o.registry = reg
	}
}

// WithSynchronousActivation makes commit hooks wait for deferred activation to finish,
// bounded by Config.Activation.SyncWaitTimeout.
//
// Test-only: a committing goroutine that waits on a saturated pool can deadlock.
// Equivalent to Config.Activation.SynchronousWaitForTests.
func WithSynchronousActivation() Option {
	return func(o *engineOptions) {
		o.syncWait = true
	}
}

// WithErrorHandler receives failures of deferred activation work, which have no caller
// to return to. Hooks.OnError is called as well.
func WithErrorHandler(fn func(ctx context.Context, err error)) Option {
	return func(o *engineOptions) {
		o.errorHandler = fn
	}
}
