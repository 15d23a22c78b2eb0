package subwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/subwatch/activation"
	"github.com/arloliu/subwatch/canonical"
	"github.com/arloliu/subwatch/criteria"
	"github.com/arloliu/subwatch/deferred"
	"github.com/arloliu/subwatch/internal/hooks"
	"github.com/arloliu/subwatch/internal/logging"
	"github.com/arloliu/subwatch/internal/metrics"
	"github.com/arloliu/subwatch/internal/workerpool"
	"github.com/arloliu/subwatch/registry"
	"github.com/arloliu/subwatch/txn"
	"github.com/arloliu/subwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/arloliu/subwatch"

// Routing outcomes reported to RouterMetrics.
const (
	outcomeIgnored      = "ignored"
	outcomeUnregistered = "unregistered"
	outcomeInvalid      = "invalid"
	outcomeDeferred     = "deferred"
	outcomeApplied      = "applied"
	outcomeFailed       = "failed"
)

// Engine routes resource change events into the subscription activation lifecycle.
//
// Writes to Subscription records are validated, activated after the enclosing
// transaction commits, and reflected in the registry of active subscriptions.
// Deletes unregister immediately. All methods are safe for concurrent use.
type Engine struct {
	cfg       Config
	store     types.RecordStore
	canon     types.Canonicalizer
	validator *criteria.Validator
	registry  *registry.Registry
	activator *activation.Activator
	probe     txn.Probe
	changes   types.ChangeSource

	// Set by Start.
	pool        *workerpool.Pool
	coordinator *deferred.Coordinator
	feed        types.ChangeFeed

	hooks        types.Hooks
	logger       types.Logger
	metrics      types.MetricsCollector
	tracer       trace.Tracer
	syncWait     bool
	errorHandler func(ctx context.Context, err error)

	state  atomic.Int32
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an Engine over the given durable store.
//
// The store is used undecorated for the engine's own status write-backs. Writers
// should go through Engine.Intercept or call the ResourceCreated/Updated/Deleted hooks
// after their own writes.
//
// Parameters:
//   - cfg: Configuration (defaults are applied to zero fields)
//   - store: Durable record store holding Subscription records
//   - opts: Optional configuration (logger, metrics, hooks, probe, change source)
//
// Returns:
//   - *Engine: Engine in StateInit
//   - error: ErrStoreRequired or a configuration error
//
// Example:
//
//	store := memstore.New()
//	engine, err := subwatch.NewEngine(subwatch.DefaultConfig(), store)
//	if err != nil {
//	    return err
//	}
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Stop(context.Background())
func NewEngine(cfg Config, store types.RecordStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}

	e := &Engine{
		cfg:          cfg,
		store:        store,
		canon:        options.canon,
		probe:        options.probe,
		changes:      options.changes,
		registry:     options.registry,
		hooks:        hooks.Fill(options.hooks),
		logger:       options.logger,
		metrics:      options.metrics,
		syncWait:     options.syncWait || cfg.Activation.SynchronousWaitForTests,
		errorHandler: options.errorHandler,
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNop()
	}
	if e.canon == nil {
		e.canon = canonical.New()
	}
	if e.probe == nil {
		e.probe = txn.ContextProbe{}
	}
	if e.registry == nil {
		e.registry = registry.New(e.logger, e.metrics)
	}
	tp := options.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	e.tracer = tp.Tracer(tracerName)

	cfg.ValidateWithWarnings(e.logger)

	validator, err := criteria.NewValidator(criteria.NewCatalog(cfg.ResourceTypes...))
	if err != nil {
		return nil, fmt.Errorf("failed to create criteria validator: %w", err)
	}
	e.validator = validator

	e.activator = activation.New(store, e.canon, validator, e.registry, cfg.channelSet(),
		activation.WithRouter(e.Route),
		activation.WithHooks(&e.hooks),
		activation.WithLogger(e.logger),
		activation.WithMetrics(e.metrics),
		activation.WithTracerProvider(tp),
		activation.WithConflictRetry(cfg.Activation.MaxConflictRetries, cfg.Activation.RetryBackoff, 0),
	)

	e.state.Store(int32(StateInit))

	return e, nil
}

// NewPrometheusMetrics creates a MetricsCollector registered with reg.
//
// Parameters:
//   - reg: Prometheus registerer (nil uses prometheus.DefaultRegisterer)
//   - namespace: Metric namespace, "subwatch" when empty
//
// Returns:
//   - MetricsCollector: Prometheus-backed collector
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// Start starts the activation worker pool and the optional change feed, then
// rebuilds the registry from durable storage.
//
// The feed starts before the resync scan so no change falls between the two.
//
// Parameters:
//   - ctx: Context for the resync scan
//
// Returns:
//   - error: ErrAlreadyStarted, or a feed or storage failure
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if !e.state.CompareAndSwap(int32(StateInit), int32(StateResyncing)) {
		e.mu.Unlock()

		return ErrAlreadyStarted
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.pool = workerpool.New("activation", e.cfg.Workers.Size, e.cfg.Workers.QueueSize, e.logger)

	coordOpts := []deferred.Option{
		deferred.WithLogger(e.logger),
		deferred.WithMetrics(e.metrics),
		deferred.WithTaskTimeout(e.cfg.OperationTimeout),
		deferred.WithErrorHandler(e.reportError),
	}
	if e.syncWait {
		coordOpts = append(coordOpts, deferred.WithSynchronousWait(e.cfg.Activation.SyncWaitTimeout))
	}
	e.coordinator = deferred.New(e.probe, e.pool, coordOpts...)
	e.mu.Unlock()

	if e.changes != nil {
		feed, err := e.changes.Watch(e.ctx, types.SubscriptionResourceType, e.Route)
		if err != nil {
			e.abortStart()
			return fmt.Errorf("failed to start change feed: %w", err)
		}
		e.mu.Lock()
		e.feed = feed
		e.mu.Unlock()
	}

	if _, err := e.resync(ctx); err != nil {
		e.abortStart()
		return fmt.Errorf("failed to resync subscriptions: %w", err)
	}

	e.transitionState(StateResyncing, StateRunning)
	e.logger.Info("subscription engine started", "registered", e.registry.Size())

	return nil
}

func (e *Engine) abortStart() {
	e.state.Store(int32(StateStopped))

	e.mu.Lock()
	e.cancel()
	feed, pool := e.feed, e.pool
	e.mu.Unlock()

	if feed != nil {
		_ = feed.Stop()
	}
	_ = pool.Close(context.Background())
}

// Stop stops the change feed and drains queued activation work.
//
// Waiting is bounded by ctx and by Config.ShutdownTimeout, whichever ends first.
//
// Parameters:
//   - ctx: Context for shutdown timeout
//
// Returns:
//   - error: ErrNotStarted, or a drain timeout
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	current := e.State()
	if current != StateRunning && current != StateResyncing {
		e.mu.Unlock()

		return ErrNotStarted
	}
	e.transitionState(current, StateStopping)
	e.cancel()
	feed := e.feed
	e.mu.Unlock()

	var shutdownErr error
	if feed != nil {
		if err := feed.Stop(); err != nil {
			e.logger.Error("failed to stop change feed", "error", err)
			shutdownErr = fmt.Errorf("change feed stop failed: %w", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
	defer cancel()
	if err := e.pool.Close(drainCtx); err != nil {
		e.logger.Error("activation work did not drain before shutdown timeout", "pending", e.pool.Pending(), "error", err)
		shutdownErr = errors.Join(shutdownErr, err)
	}

	e.transitionState(StateStopping, StateStopped)
	e.logger.Info("subscription engine stopped")

	return shutdownErr
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Registry returns the registry of active subscriptions.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// ValidateCriteria checks a subscription record's criteria without persisting anything.
//
// Use it before a write to reject bad subscriptions early. Records of other resource
// types are accepted.
//
// Parameters:
//   - rec: Record about to be written
//
// Returns:
//   - error: *ValidationError for invalid criteria, or a canonicalization error
func (e *Engine) ValidateCriteria(rec Record) error {
	if rec.ResourceType != types.SubscriptionResourceType {
		return nil
	}

	sub, err := e.canon.Canonicalize(rec)
	if err != nil {
		return err
	}
	_, err = e.validator.Validate(sub.Criteria)

	return err
}

// ResourceCreated routes a committed or in-transaction create of rec.
func (e *Engine) ResourceCreated(ctx context.Context, rec Record) error {
	return e.Route(ctx, types.NewCreateEvent(rec))
}

// ResourceUpdated routes a committed or in-transaction update of rec.
func (e *Engine) ResourceUpdated(ctx context.Context, rec Record) error {
	return e.Route(ctx, types.NewUpdateEvent(rec))
}

// ResourceDeleted routes the delete of resourceType/id.
func (e *Engine) ResourceDeleted(ctx context.Context, resourceType, id string) error {
	return e.Route(ctx, types.NewDeleteEvent(resourceType, id))
}

// Route dispatches a resource change event.
//
// Behavior by event:
//   - not a Subscription: ignored
//   - DELETE: unregistered before Route returns
//   - CREATE/UPDATE: criteria are validated now; activation runs inline without an
//     enclosing transaction and after commit with one
//
// An event whose criteria do not compile returns a *ValidationError. Because the
// record is already written, the engine also reconciles its durable state on the same
// schedule as activation: if the writer commits anyway the subscription ends in Error
// and leaves the registry, and if it rolls back nothing happens.
//
// Parameters:
//   - ctx: Request context, possibly carrying a txn scope
//   - ev: Change event
//
// Returns:
//   - error: *ValidationError, ErrNotStarted, or an inline activation failure
func (e *Engine) Route(ctx context.Context, ev ResourceChangedEvent) error {
	op := ev.Operation().String()
	if ev.ResourceType() != types.SubscriptionResourceType {
		e.metrics.RecordEventRouted(op, outcomeIgnored)
		return nil
	}

	coordinator, ok := e.accepting()
	if !ok {
		return ErrNotStarted
	}

	ctx, span := e.tracer.Start(ctx, "subwatch.Route",
		trace.WithAttributes(
			attribute.String("subscription.id", ev.ID()),
			attribute.String("event.operation", op),
		),
	)
	defer span.End()

	outcome, err := e.route(ctx, coordinator, ev)
	e.metrics.RecordEventRouted(op, outcome)
	span.SetAttributes(attribute.String("route.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (e *Engine) route(ctx context.Context, coordinator *deferred.Coordinator, ev ResourceChangedEvent) (string, error) {
	switch ev.Operation() {
	case types.OperationDelete:
		e.registry.Unregister(ev.ID())
		return outcomeUnregistered, nil
	case types.OperationCreate, types.OperationUpdate:
		return e.routeWrite(ctx, coordinator, ev)
	default:
		e.logger.Debug("ignoring event with unknown operation", "subscription", ev.ID())
		return outcomeIgnored, nil
	}
}

func (e *Engine) routeWrite(ctx context.Context, coordinator *deferred.Coordinator, ev ResourceChangedEvent) (string, error) {
	rec, ok := ev.Payload()
	if !ok {
		return outcomeFailed, fmt.Errorf("%w: %s event for %s carries no payload", ErrMalformedPayload, ev.Operation(), ev.ID())
	}

	sub, err := e.canon.Canonicalize(rec)
	if err != nil {
		return outcomeFailed, err
	}

	if _, err := e.validator.Validate(sub.Criteria); err != nil {
		id := sub.ID
		if _, schedErr := coordinator.ScheduleOrRun(ctx, func(ctx context.Context) (types.Action, error) {
			return e.activator.Reconcile(ctx, id)
		}); schedErr != nil {
			e.logger.Error("failed to reconcile subscription with invalid criteria", "subscription", id, "error", schedErr)
		}

		return outcomeInvalid, err
	}

	outcome, err := coordinator.ScheduleOrRun(ctx, func(ctx context.Context) (types.Action, error) {
		return e.activator.Apply(ctx, sub)
	})
	if err != nil {
		return outcomeFailed, err
	}
	if outcome.Deferred {
		return outcomeDeferred, nil
	}

	return outcomeApplied, nil
}

// Resync rebuilds the registry from durable storage.
//
// Active subscriptions are registered, Requested ones are activated and everything
// else is removed. Registry entries without a durable record are dropped. Run on
// startup it closes the gap left by a crash between commit and deferred activation.
//
// Returns:
//   - error: Listing failure, or the joined per-subscription failures
func (e *Engine) Resync(ctx context.Context) error {
	if _, ok := e.accepting(); !ok {
		return ErrNotStarted
	}

	failures, err := e.resync(ctx)
	if err != nil {
		return err
	}

	return errors.Join(failures...)
}

// resync returns per-subscription failures separately from a listing failure, which
// is the only one that aborts the scan.
func (e *Engine) resync(ctx context.Context) ([]error, error) {
	ctx, span := e.tracer.Start(ctx, "subwatch.Resync")
	defer span.End()

	records, err := e.store.List(ctx, types.SubscriptionResourceType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	var failures []error
	for _, rec := range records {
		seen[rec.ID] = struct{}{}

		sub, err := e.canon.Canonicalize(rec)
		if err != nil {
			e.logger.Warn("skipping unreadable subscription during resync", "subscription", rec.ID, "error", err)
			failures = append(failures, err)

			continue
		}

		if _, err := e.activator.Apply(ctx, sub); err != nil {
			e.logger.Warn("resync of subscription failed", "subscription", sub.ID, "error", err)
			failures = append(failures, err)
		}
	}

	var stale []string
	e.registry.Range(func(entry registry.Entry) bool {
		if _, ok := seen[entry.Subscription.ID]; !ok {
			stale = append(stale, entry.Subscription.ID)
		}

		return true
	})
	for _, id := range stale {
		e.registry.Unregister(id)
	}

	span.SetAttributes(
		attribute.Int("resync.records", len(records)),
		attribute.Int("resync.failures", len(failures)),
		attribute.Int("resync.removed", len(stale)),
	)
	e.logger.Info("subscriptions resynced",
		"records", len(records), "registered", e.registry.Size(), "failures", len(failures), "removed", len(stale))

	return failures, nil
}

// accepting returns the coordinator while the engine can take events.
func (e *Engine) accepting() (*deferred.Coordinator, bool) {
	switch e.State() {
	case StateResyncing, StateRunning, StateStopping:
	default:
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.coordinator, e.coordinator != nil
}

func (e *Engine) reportError(ctx context.Context, err error) {
	if e.errorHandler != nil {
		e.errorHandler(ctx, err)
	}
	if hookErr := e.hooks.OnError(ctx, err); hookErr != nil {
		e.logger.Warn("OnError hook failed", "error", hookErr)
	}
}

// transitionState moves from one state to another, logging unexpected sources.
func (e *Engine) transitionState(from, to State) {
	if !e.state.CompareAndSwap(int32(from), int32(to)) {
		e.logger.Warn("unexpected state transition", "from", e.State().String(), "to", to.String())
		e.state.Store(int32(to))

		return
	}
	e.logger.Debug("state transition", "from", from.String(), "to", to.String())
}
