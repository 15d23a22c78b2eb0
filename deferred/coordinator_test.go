package deferred

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/subwatch/internal/logging"
	"github.com/arloliu/subwatch/internal/workerpool"
	"github.com/arloliu/subwatch/txn"
	"github.com/arloliu/subwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	modes map[string]*atomic.Int32
}

func newCountingMetrics() *countingMetrics {
	m := &countingMetrics{modes: map[string]*atomic.Int32{}}
	for _, mode := range []string{ModeInline, ModeDeferred, ModeRejected, ModeRolledBack} {
		m.modes[mode] = &atomic.Int32{}
	}

	return m
}

func (m *countingMetrics) RecordDeferred(mode string) { m.modes[mode].Add(1) }

func (m *countingMetrics) count(mode string) int32 { return m.modes[mode].Load() }

type rejectingPool struct{}

func (rejectingPool) Submit(func()) (<-chan struct{}, error) { return nil, types.ErrQueueFull }

func newPool(t *testing.T) *workerpool.Pool {
	t.Helper()
	p := workerpool.New("deferred-test", 2, 8, logging.NewNop())
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	return p
}

func TestScheduleOrRun_InlineWithoutTransaction(t *testing.T) {
	m := newCountingMetrics()
	c := New(txn.ContextProbe{}, newPool(t), WithMetrics(m))

	out, err := c.ScheduleOrRun(context.Background(), func(context.Context) (types.Action, error) {
		return types.ActionRegister, nil
	})
	require.NoError(t, err)
	require.False(t, out.Deferred)
	require.Equal(t, types.ActionRegister, out.Action)
	require.Equal(t, int32(1), m.count(ModeInline))

	boom := errors.New("boom")
	_, err = c.ScheduleOrRun(context.Background(), func(context.Context) (types.Action, error) {
		return types.ActionIgnore, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestScheduleOrRun_DeferredUntilCommit(t *testing.T) {
	m := newCountingMetrics()
	c := New(txn.ContextProbe{}, newPool(t), WithMetrics(m))

	var ran atomic.Bool
	ctx, scope := txn.Begin(context.Background())
	out, err := c.ScheduleOrRun(ctx, func(workCtx context.Context) (types.Action, error) {
		assert.False(t, txn.IsActive(workCtx), "deferred work runs outside the transaction")
		ran.Store(true)

		return types.ActionActivateThenRegister, nil
	})
	require.NoError(t, err)
	require.True(t, out.Deferred)

	time.Sleep(20 * time.Millisecond)
	require.False(t, ran.Load(), "work must not run before commit")

	require.NoError(t, scope.Commit())
	require.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), m.count(ModeDeferred))
}

func TestScheduleOrRun_RollbackDropsWork(t *testing.T) {
	m := newCountingMetrics()
	c := New(txn.ContextProbe{}, newPool(t), WithMetrics(m))

	var ran atomic.Bool
	ctx, scope := txn.Begin(context.Background())
	_, err := c.ScheduleOrRun(ctx, func(context.Context) (types.Action, error) {
		ran.Store(true)
		return types.ActionRegister, nil
	})
	require.NoError(t, err)

	require.NoError(t, scope.Rollback())
	time.Sleep(20 * time.Millisecond)
	require.False(t, ran.Load())
	require.Equal(t, int32(1), m.count(ModeRolledBack))
	require.Equal(t, int32(0), m.count(ModeDeferred))
}

func TestScheduleOrRun_SynchronousWait(t *testing.T) {
	c := New(txn.ContextProbe{}, newPool(t), WithSynchronousWait(0))
	require.Equal(t, DefaultSyncWaitTimeout, c.SynchronousWait())

	var ran atomic.Bool
	ctx, scope := txn.Begin(context.Background())
	_, err := c.ScheduleOrRun(ctx, func(context.Context) (types.Action, error) {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)

		return types.ActionRegister, nil
	})
	require.NoError(t, err)

	require.NoError(t, scope.Commit())
	require.True(t, ran.Load(), "commit returns only after deferred work finished")
}

func TestScheduleOrRun_SynchronousWaitTimesOut(t *testing.T) {
	c := New(txn.ContextProbe{}, newPool(t), WithSynchronousWait(30*time.Millisecond))

	release := make(chan struct{})
	defer close(release)

	ctx, scope := txn.Begin(context.Background())
	_, err := c.ScheduleOrRun(ctx, func(context.Context) (types.Action, error) {
		<-release
		return types.ActionRegister, nil
	})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, scope.Commit())
	require.Less(t, time.Since(start), time.Second)
}

func TestScheduleOrRun_QueueFullIsReported(t *testing.T) {
	m := newCountingMetrics()
	var reported atomic.Value
	c := New(txn.ContextProbe{}, rejectingPool{},
		WithMetrics(m),
		WithErrorHandler(func(_ context.Context, err error) { reported.Store(err) }),
	)

	ctx, scope := txn.Begin(context.Background())
	_, err := c.ScheduleOrRun(ctx, func(context.Context) (types.Action, error) {
		t.Error("rejected work must not run")
		return types.ActionIgnore, nil
	})
	require.NoError(t, err)
	require.NoError(t, scope.Commit())

	require.Equal(t, int32(1), m.count(ModeRejected))
	require.ErrorIs(t, reported.Load().(error), types.ErrQueueFull)
}

func TestScheduleOrRun_DeferredErrorReported(t *testing.T) {
	errs := make(chan error, 1)
	c := New(txn.ContextProbe{}, newPool(t),
		WithErrorHandler(func(_ context.Context, err error) { errs <- err }),
		WithTaskTimeout(time.Second),
	)

	boom := errors.New("boom")
	ctx, scope := txn.Begin(context.Background())
	_, err := c.ScheduleOrRun(ctx, func(workCtx context.Context) (types.Action, error) {
		_, hasDeadline := workCtx.Deadline()
		assert.True(t, hasDeadline)

		return types.ActionIgnore, boom
	})
	require.NoError(t, err)
	require.NoError(t, scope.Commit())

	select {
	case got := <-errs:
		require.ErrorIs(t, got, boom)
	case <-time.After(time.Second):
		t.Fatal("error handler not called")
	}
}

func TestScheduleOrRun_DetachedFromRequestCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c := New(txn.ContextProbe{}, newPool(t), WithSynchronousWait(time.Second))

	var ctxErr atomic.Value
	ctx, scope := txn.Begin(parent)
	_, err := c.ScheduleOrRun(ctx, func(workCtx context.Context) (types.Action, error) {
		ctxErr.Store(workCtx.Err() == nil)
		return types.ActionRegister, nil
	})
	require.NoError(t, err)

	cancel()
	require.NoError(t, scope.Commit())
	require.Equal(t, true, ctxErr.Load())
}
