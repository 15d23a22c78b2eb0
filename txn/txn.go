// Package txn carries an ambient transaction scope through context.Context.
//
// A Scope collects commit hooks (run only after a successful commit) and rollback
// hooks (run only after a rollback). Stores that participate in transactions pick
// the scope's *sql.Tx up from the context; components that must act only on
// durably committed state register commit hooks instead of acting inline.
//
// Example:
//
//	err := txn.RunInTx(ctx, db, func(ctx context.Context) error {
//	    _, err := store.Create(ctx, rec)  // uses the scope's *sql.Tx
//	    return err                        // engine hooks fire after commit
//	})
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/subwatch/types"
)

type scopeKey struct{}

type scopeState int

const (
	scopeOpen scopeState = iota
	scopeCommitted
	scopeRolledBack
)

// Scope is one transaction boundary.
//
// Scope methods are safe for concurrent use. Hooks run on the goroutine calling
// Commit or Rollback, after the scope lock is released, in registration order.
type Scope struct {
	mu            sync.Mutex
	tx            *sql.Tx
	state         scopeState
	commitHooks   []func()
	rollbackHooks []func()
}

// Begin opens a scope that is not backed by a database transaction.
//
// Useful for stores with their own undo logic (see OnRollback) and for tests that
// need deterministic commit/rollback of hook-driven work.
func Begin(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// BeginSQL opens a scope backed by a new database transaction.
func BeginSQL(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (context.Context, *Scope, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}

	s := &Scope{tx: tx}

	return context.WithValue(ctx, scopeKey{}, s), s, nil
}

// FromContext returns the open scope carried by ctx.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	if s == nil || !s.Active() {
		return nil, false
	}

	return s, true
}

// IsActive reports whether ctx carries an open scope.
func IsActive(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// SQLTx returns the database transaction of the open scope in ctx, or nil.
func SQLTx(ctx context.Context) *sql.Tx {
	s, ok := FromContext(ctx)
	if !ok {
		return nil
	}

	return s.tx
}

// RegisterCommitHook attaches fn to the open scope in ctx.
//
// Returns:
//   - error: ErrNoTransaction when ctx carries no open scope
func RegisterCommitHook(ctx context.Context, fn func()) error {
	s, ok := FromContext(ctx)
	if !ok {
		return types.ErrNoTransaction
	}

	return s.OnCommit(fn)
}

// OnRollback attaches fn to run if the open scope in ctx rolls back.
//
// Returns:
//   - error: ErrNoTransaction when ctx carries no open scope
func OnRollback(ctx context.Context, fn func()) error {
	s, ok := FromContext(ctx)
	if !ok {
		return types.ErrNoTransaction
	}

	return s.OnRollback(fn)
}

// Detach returns a context that keeps ctx's values but is neither cancelled with ctx
// nor part of its transaction scope.
//
// Work handed to another goroutine after commit runs under a detached context.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), scopeKey{}, (*Scope)(nil))
}

// Active reports whether the scope is still open.
func (s *Scope) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == scopeOpen
}

// OnCommit attaches fn to run after a successful commit.
func (s *Scope) OnCommit(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != scopeOpen {
		return types.ErrTransactionClosed
	}
	s.commitHooks = append(s.commitHooks, fn)

	return nil
}

// OnRollback attaches fn to run after a rollback.
func (s *Scope) OnRollback(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != scopeOpen {
		return types.ErrTransactionClosed
	}
	s.rollbackHooks = append(s.rollbackHooks, fn)

	return nil
}

// Commit commits the scope and then runs its commit hooks.
//
// If the underlying database commit fails the scope is rolled back instead: rollback
// hooks run and commit hooks never do.
func (s *Scope) Commit() error {
	s.mu.Lock()
	if s.state != scopeOpen {
		s.mu.Unlock()
		return types.ErrTransactionClosed
	}

	if s.tx != nil {
		if err := s.tx.Commit(); err != nil {
			s.state = scopeRolledBack
			hooks := s.rollbackHooks
			s.clearHooks()
			s.mu.Unlock()
			runHooks(hooks)

			return fmt.Errorf("commit transaction: %w", err)
		}
	}

	s.state = scopeCommitted
	hooks := s.commitHooks
	s.clearHooks()
	s.mu.Unlock()

	runHooks(hooks)

	return nil
}

// Rollback aborts the scope and runs its rollback hooks. Commit hooks never run.
//
// Rolling back a closed scope is a no-op.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	if s.state != scopeOpen {
		s.mu.Unlock()
		return nil
	}

	var txErr error
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			txErr = fmt.Errorf("rollback transaction: %w", err)
		}
	}

	s.state = scopeRolledBack
	hooks := s.rollbackHooks
	s.clearHooks()
	s.mu.Unlock()

	// Undo in reverse registration order.
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}

	return txErr
}

func (s *Scope) clearHooks() {
	s.commitHooks = nil
	s.rollbackHooks = nil
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
