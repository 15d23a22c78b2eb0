package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/subwatch/criteria"
	"github.com/arloliu/subwatch/internal/hooks"
	"github.com/arloliu/subwatch/internal/logging"
	"github.com/arloliu/subwatch/internal/metrics"
	"github.com/arloliu/subwatch/registry"
	"github.com/arloliu/subwatch/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/arloliu/subwatch/activation"

// Default conflict retry settings.
const (
	DefaultMaxConflictRetries = 3
	DefaultRetryBackoff       = 10 * time.Millisecond
)

// Router re-submits a change event to the engine's router.
type Router func(ctx context.Context, ev types.ResourceChangedEvent) error

// Activator executes activation decisions against the store and the registry.
//
// Safe for concurrent use. Apply for one subscription identity may run concurrently
// from several goroutines; the store's optimistic version check serializes the
// Requested to Active write, and registry operations are idempotent.
type Activator struct {
	store     types.RecordStore
	canon     types.Canonicalizer
	validator *criteria.Validator
	registry  *registry.Registry
	supported types.ChannelSet

	router  Router
	hooks   types.Hooks
	logger  types.Logger
	metrics types.ActivationMetrics
	tracer  trace.Tracer

	maxRetries int
	backoff    *conflictBackoff
}

// Option configures an Activator.
type Option func(*Activator)

// WithRouter sets the router used to re-submit the Active write-back as an update.
//
// Without a router the activator registers the subscription directly.
func WithRouter(r Router) Option {
	return func(a *Activator) { a.router = r }
}

// WithHooks sets lifecycle callbacks. Nil callbacks are replaced with no-ops.
func WithHooks(h *types.Hooks) Option {
	return func(a *Activator) { a.hooks = hooks.Fill(h) }
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(a *Activator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m types.ActivationMetrics) Option {
	return func(a *Activator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithTracerProvider sets the tracer provider used for activation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Activator) {
		if tp != nil {
			a.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithConflictRetry bounds re-reads after a stale-version write.
//
// Parameters:
//   - maxRetries: Retries after the first attempt (0 disables retrying)
//   - backoff: Base delay between retries
//   - seed: Non-zero seed makes jitter deterministic
func WithConflictRetry(maxRetries int, backoff time.Duration, seed int64) Option {
	return func(a *Activator) {
		if maxRetries >= 0 {
			a.maxRetries = maxRetries
		}
		if backoff <= 0 {
			backoff = a.backoff.base
		}
		a.backoff = newConflictBackoff(backoff, seed)
	}
}

// New creates an Activator.
//
// Parameters:
//   - store: Durable store holding subscription records (undecorated write path)
//   - canon: Canonicalizer for subscription payloads
//   - validator: Criteria validator
//   - reg: Registry to mutate
//   - supported: Channel types this engine dispatches
//   - opts: Optional configuration
//
// Returns:
//   - *Activator: Ready activator
func New(
	store types.RecordStore,
	canon types.Canonicalizer,
	validator *criteria.Validator,
	reg *registry.Registry,
	supported types.ChannelSet,
	opts ...Option,
) *Activator {
	a := &Activator{
		store:      store,
		canon:      canon,
		validator:  validator,
		registry:   reg,
		supported:  supported,
		hooks:      hooks.NewNop(),
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
		tracer:     otel.GetTracerProvider().Tracer(tracerName),
		maxRetries: DefaultMaxConflictRetries,
		backoff:    newConflictBackoff(DefaultRetryBackoff, 0),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Decide returns the action sub calls for under this activator's supported channels.
func (a *Activator) Decide(sub types.CanonicalSubscription) types.Action {
	return Decide(sub, a.supported)
}

// Apply decides and executes the action for sub.
//
// Validation and business-rule failures during activation are not returned: they are
// persisted as Error status with a reason and reported as ActionReject.
//
// Returns:
//   - types.Action: The action taken
//   - error: Store, canonicalization or context failures
func (a *Activator) Apply(ctx context.Context, sub types.CanonicalSubscription) (types.Action, error) {
	ctx, span := a.tracer.Start(ctx, "activation.Apply",
		trace.WithAttributes(
			attribute.String("subscription.id", sub.ID),
			attribute.String("subscription.status", sub.Status.String()),
		),
	)
	defer span.End()

	start := time.Now()
	action, err := a.apply(ctx, sub, a.Decide(sub))
	a.metrics.RecordActivation(action.String(), time.Since(start).Seconds())

	span.SetAttributes(attribute.String("activation.action", action.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return action, err
}

// Reconcile re-reads the durable subscription id and applies the action its stored
// state calls for. A missing record is unregistered.
//
// Parameters:
//   - ctx: Context for store access
//   - id: Subscription identity
//
// Returns:
//   - types.Action: The action taken
//   - error: Store or canonicalization failure
func (a *Activator) Reconcile(ctx context.Context, id string) (types.Action, error) {
	rec, err := a.store.Read(ctx, types.SubscriptionResourceType, id)
	if errors.Is(err, types.ErrRecordNotFound) {
		a.registry.Unregister(id)
		return types.ActionUnregister, nil
	}
	if err != nil {
		return types.ActionIgnore, fmt.Errorf("read subscription %s: %w", id, err)
	}

	sub, err := a.canon.Canonicalize(rec)
	if err != nil {
		return types.ActionIgnore, fmt.Errorf("canonicalize subscription %s: %w", id, err)
	}

	return a.Apply(ctx, sub)
}

func (a *Activator) apply(ctx context.Context, sub types.CanonicalSubscription, action types.Action) (types.Action, error) {
	switch action {
	case types.ActionIgnore:
		// Nothing is written, but an entry left from a supported channel must go.
		removed := a.registry.Unregister(sub.ID)
		a.logger.Debug("subscription channel not supported, ignoring",
			"subscription", sub.ID, "channel", sub.ChannelType.String(), "unregistered", removed)

		return types.ActionIgnore, nil
	case types.ActionRegister:
		return a.register(ctx, sub)
	case types.ActionUnregister:
		a.registry.UnregisterIfStatusNotActive(sub.ID, sub.Status)
		return types.ActionUnregister, nil
	case types.ActionActivateThenRegister:
		return a.activate(ctx, sub.ID)
	case types.ActionReject:
		return types.ActionReject, nil
	default:
		return types.ActionIgnore, fmt.Errorf("unexpected action %d for subscription %s", action, sub.ID)
	}
}

// register refreshes the registry entry of an Active subscription.
//
// An Active subscription whose criteria no longer compile (for example one written
// directly to storage) is moved to Error instead.
func (a *Activator) register(ctx context.Context, sub types.CanonicalSubscription) (types.Action, error) {
	matcher, err := a.validator.Validate(sub.Criteria)
	if err != nil {
		rec, readErr := a.store.Read(ctx, types.SubscriptionResourceType, sub.ID)
		if readErr != nil {
			a.registry.Unregister(sub.ID)
			return types.ActionReject, fmt.Errorf("read subscription %s: %w", sub.ID, readErr)
		}

		return a.reject(ctx, rec, sub, err.Error())
	}

	a.registry.Refresh(sub, matcher)

	return types.ActionRegister, nil
}

// activate moves a Requested subscription to Active.
//
// The durable record is re-read first: the event that triggered activation may be
// older than what another writer has committed since.
func (a *Activator) activate(ctx context.Context, id string) (types.Action, error) {
	for attempt := 0; ; attempt++ {
		rec, err := a.store.Read(ctx, types.SubscriptionResourceType, id)
		if errors.Is(err, types.ErrRecordNotFound) {
			a.registry.Unregister(id)
			return types.ActionUnregister, nil
		}
		if err != nil {
			return types.ActionIgnore, fmt.Errorf("read subscription %s: %w", id, err)
		}

		fresh, err := a.canon.Canonicalize(rec)
		if err != nil {
			return types.ActionIgnore, fmt.Errorf("canonicalize subscription %s: %w", id, err)
		}

		if next := a.Decide(fresh); next != types.ActionActivateThenRegister {
			a.logger.Debug("subscription changed before activation",
				"subscription", id, "status", fresh.Status.String(), "action", next.String())

			return a.apply(ctx, fresh, next)
		}

		matcher, err := a.validator.Validate(fresh.Criteria)
		if err != nil {
			return a.reject(ctx, rec, fresh, err.Error())
		}

		activeRec, err := a.canon.WithStatus(rec, types.StatusActive, "")
		if err != nil {
			return types.ActionIgnore, fmt.Errorf("set active status on %s: %w", id, err)
		}

		saved, err := a.store.Update(ctx, activeRec)
		switch {
		case err == nil:
			return a.activated(ctx, fresh, saved, matcher)
		case errors.Is(err, types.ErrStaleRecord) && attempt < a.maxRetries:
			a.metrics.RecordActivationConflict()
			delay := a.backoff.next(attempt + 1)
			a.logger.Debug("activation write conflicted, retrying",
				"subscription", id, "attempt", attempt+1, "delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return types.ActionIgnore, err
			}
		case errors.Is(err, types.ErrStaleRecord):
			a.metrics.RecordActivationConflict()
			return types.ActionIgnore, fmt.Errorf("activate subscription %s: %w", id, err)
		case errors.Is(err, types.ErrRecordNotFound):
			a.registry.Unregister(id)
			return types.ActionUnregister, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return types.ActionIgnore, err
		default:
			return a.reject(ctx, rec, fresh, err.Error())
		}
	}
}

func (a *Activator) activated(
	ctx context.Context,
	sub types.CanonicalSubscription,
	saved types.Record,
	matcher *criteria.Matcher,
) (types.Action, error) {
	sub.Status = types.StatusActive
	sub.ErrorReason = ""
	sub.Version = saved.Version

	log := a.logger.With("subscription", sub.ID)
	log.Info("subscription activated", "criteria", sub.Criteria, "version", saved.Version)
	if err := a.hooks.OnActivated(ctx, sub); err != nil {
		log.Warn("OnActivated hook failed", "error", err)
	}

	if a.router == nil {
		a.registry.Refresh(sub, matcher)
		return types.ActionActivateThenRegister, nil
	}

	if err := a.router(ctx, types.NewUpdateEvent(saved)); err != nil {
		// The write-back is durable; register from what we already know so the
		// registry does not lag behind storage.
		log.Warn("re-routing activated subscription failed", "error", err)
		a.registry.Refresh(sub, matcher)
	}

	return types.ActionActivateThenRegister, nil
}

// reject persists Error with reason, removes any registry entry and reports Reject.
func (a *Activator) reject(
	ctx context.Context,
	rec types.Record,
	sub types.CanonicalSubscription,
	reason string,
) (types.Action, error) {
	log := a.logger.With("subscription", sub.ID)
	a.registry.Unregister(sub.ID)
	log.Warn("subscription activation failed", "reason", reason)

	var persistErr error
	errRec, err := a.canon.WithStatus(rec, types.StatusError, reason)
	if err == nil {
		_, err = a.store.Update(ctx, errRec)
	}
	if err != nil {
		persistErr = fmt.Errorf("persist error status for %s: %w", sub.ID, err)
		log.Error("failed to persist error status", "error", err)
	}

	sub.Status = types.StatusError
	sub.ErrorReason = reason
	if err := a.hooks.OnActivationFailed(ctx, sub, reason); err != nil {
		log.Warn("OnActivationFailed hook failed", "error", err)
	}

	return types.ActionReject, persistErr
}
