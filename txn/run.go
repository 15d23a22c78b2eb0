package txn

import (
	"context"
	"database/sql"
	"errors"
)

// Run executes fn inside a scope, joining the scope already carried by ctx if any.
//
// When Run opens the scope it commits on a nil error and rolls back otherwise,
// including when fn panics (the panic is re-raised after rollback).
func Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if IsActive(ctx) {
		return fn(ctx)
	}

	scopedCtx, scope := Begin(ctx)

	return finish(scopedCtx, scope, fn)
}

// RunInTx executes fn inside a database transaction, joining the scope already
// carried by ctx if any.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	if IsActive(ctx) {
		return fn(ctx)
	}

	scopedCtx, scope, err := BeginSQL(ctx, db, nil)
	if err != nil {
		return err
	}

	return finish(scopedCtx, scope, fn)
}

func finish(ctx context.Context, scope *Scope, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = scope.Rollback()
			panic(r)
		}
	}()

	if err = fn(ctx); err != nil {
		if rbErr := scope.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}

		return err
	}

	return scope.Commit()
}

// Probe reports on and attaches to the ambient transaction of a context.
type Probe interface {
	// IsActive reports whether ctx carries an open transaction.
	IsActive(ctx context.Context) bool

	// RegisterCommitHook attaches fn to run only after that transaction commits.
	RegisterCommitHook(ctx context.Context, fn func()) error
}

// RollbackNotifier is implemented by probes that can also report rollbacks.
type RollbackNotifier interface {
	RegisterRollbackHook(ctx context.Context, fn func()) error
}

// ContextProbe implements Probe over scopes carried by context.Context.
type ContextProbe struct{}

// Compile-time assertions that ContextProbe implements Probe and RollbackNotifier.
var (
	_ Probe            = ContextProbe{}
	_ RollbackNotifier = ContextProbe{}
)

// IsActive implements Probe.
func (ContextProbe) IsActive(ctx context.Context) bool { return IsActive(ctx) }

// RegisterCommitHook implements Probe.
func (ContextProbe) RegisterCommitHook(ctx context.Context, fn func()) error {
	return RegisterCommitHook(ctx, fn)
}

// RegisterRollbackHook implements RollbackNotifier.
func (ContextProbe) RegisterRollbackHook(ctx context.Context, fn func()) error {
	return OnRollback(ctx, fn)
}
