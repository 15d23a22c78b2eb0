// Package deferred decides whether activation work runs now or after the enclosing
// transaction commits.
//
// Work that observes or mutates subscription state must never run before the write
// that triggered it is durable: running inline inside the writer's transaction would
// read uncommitted data and could deadlock on the rows that transaction holds. The
// Coordinator therefore runs work inline only when no transaction is active, and
// otherwise parks it behind a commit hook that hands it to a worker pool.
package deferred

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/subwatch/internal/logging"
	"github.com/arloliu/subwatch/internal/metrics"
	"github.com/arloliu/subwatch/txn"
	"github.com/arloliu/subwatch/types"
)

// Scheduling modes reported to DeferredMetrics.
const (
	ModeInline     = "inline"
	ModeDeferred   = "deferred"
	ModeRejected   = "rejected"
	ModeRolledBack = "rolled_back"
)

// DefaultSyncWaitTimeout bounds the test-only synchronous wait.
const DefaultSyncWaitTimeout = 5 * time.Second

// Work is one activation decision to execute.
type Work func(ctx context.Context) (types.Action, error)

// Pool runs deferred tasks on another goroutine.
type Pool interface {
	// Submit enqueues fn; the returned channel closes when fn has finished.
	Submit(fn func()) (<-chan struct{}, error)
}

// Outcome reports what ScheduleOrRun did.
//
// Action is meaningful only when Deferred is false; deferred work reports its result
// through the error handler and metrics once it runs.
type Outcome struct {
	Action   types.Action
	Deferred bool
}

// Coordinator schedules Work relative to the ambient transaction.
type Coordinator struct {
	probe    txn.Probe
	pool     Pool
	logger   types.Logger
	metrics  types.DeferredMetrics
	onError  func(ctx context.Context, err error)
	syncWait time.Duration
	timeout  time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger types.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m types.DeferredMetrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithErrorHandler receives errors returned by deferred work.
func WithErrorHandler(fn func(ctx context.Context, err error)) Option {
	return func(c *Coordinator) {
		c.onError = fn
	}
}

// WithTaskTimeout bounds each deferred task. Zero means no deadline.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithSynchronousWait makes the commit hook block until the deferred task finishes
// or timeout elapses (DefaultSyncWaitTimeout when timeout <= 0).
//
// Intended for tests that need a deterministic post-commit state. Production
// configurations must leave it off: it puts pool latency on the committing goroutine.
func WithSynchronousWait(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout <= 0 {
			timeout = DefaultSyncWaitTimeout
		}
		c.syncWait = timeout
	}
}

// New creates a Coordinator.
//
// Parameters:
//   - probe: Reports on the ambient transaction and accepts commit hooks
//   - pool: Executes deferred work after commit
//   - opts: Optional configuration
//
// Returns:
//   - *Coordinator: Ready coordinator
func New(probe txn.Probe, pool Pool, opts ...Option) *Coordinator {
	c := &Coordinator{
		probe:   probe,
		pool:    pool,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SynchronousWait returns the configured wait, zero when disabled.
func (c *Coordinator) SynchronousWait() time.Duration {
	return c.syncWait
}

// ScheduleOrRun runs work now if ctx carries no transaction, otherwise defers it
// until that transaction commits.
//
// Parameters:
//   - ctx: Caller context, possibly carrying a transaction scope
//   - work: Decision to execute
//
// Returns:
//   - Outcome: Inline action, or Deferred=true
//   - error: Error from inline work, or from registering the commit hook
func (c *Coordinator) ScheduleOrRun(ctx context.Context, work Work) (Outcome, error) {
	if !c.probe.IsActive(ctx) {
		c.metrics.RecordDeferred(ModeInline)
		action, err := work(ctx)

		return Outcome{Action: action}, err
	}

	detached := txn.Detach(ctx)
	if err := c.probe.RegisterCommitHook(ctx, func() { c.afterCommit(detached, work) }); err != nil {
		// The scope closed between the probe and the registration; nothing can be
		// deferred onto it any more, so run against committed state now.
		if errors.Is(err, types.ErrTransactionClosed) || errors.Is(err, types.ErrNoTransaction) {
			c.metrics.RecordDeferred(ModeInline)
			action, workErr := work(detached)

			return Outcome{Action: action}, workErr
		}

		return Outcome{}, err
	}

	if n, ok := c.probe.(txn.RollbackNotifier); ok {
		_ = n.RegisterRollbackHook(ctx, func() {
			c.metrics.RecordDeferred(ModeRolledBack)
			c.logger.Debug("transaction rolled back, deferred activation dropped")
		})
	}

	return Outcome{Deferred: true}, nil
}

func (c *Coordinator) afterCommit(ctx context.Context, work Work) {
	done, err := c.pool.Submit(func() { c.runDeferred(ctx, work) })
	if err != nil {
		c.metrics.RecordDeferred(ModeRejected)
		c.logger.Error("deferred activation not scheduled", "error", err)
		c.report(ctx, err)

		return
	}
	c.metrics.RecordDeferred(ModeDeferred)

	if c.syncWait <= 0 {
		return
	}

	timer := time.NewTimer(c.syncWait)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn("synchronous wait for deferred activation timed out", "timeout", c.syncWait)
	}
}

func (c *Coordinator) runDeferred(ctx context.Context, work Work) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	action, err := work(ctx)
	if err != nil {
		c.logger.Error("deferred activation failed", "action", action.String(), "error", err)
		c.report(ctx, err)

		return
	}
	c.logger.Debug("deferred activation finished", "action", action.String())
}

func (c *Coordinator) report(ctx context.Context, err error) {
	if c.onError != nil {
		c.onError(ctx, err)
	}
}
