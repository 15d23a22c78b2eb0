// Package memstore provides an in-memory types.RecordStore.
//
// Writes made under a txn scope are undone if that scope rolls back, so the store can
// stand in for a transactional database in tests and single-process deployments.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/subwatch/txn"
	"github.com/arloliu/subwatch/types"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Rule inspects a write before it is applied.
//
// Returning a *types.RejectedError rejects the write as a business-rule violation.
// prev is the zero Record on Create.
type Rule func(ctx context.Context, prev, next types.Record) error

// Store is an in-memory record store with optimistic concurrency on Version.
type Store struct {
	records *xsync.Map[string, types.Record]
	rules   []Rule
	now     func() time.Time
}

// Compile-time assertion that Store implements RecordStore.
var _ types.RecordStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRule adds a write rule. Rules run in registration order.
func WithRule(rule Rule) Option {
	return func(s *Store) {
		s.rules = append(s.rules, rule)
	}
}

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: xsync.NewMap[string, types.Record](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func key(resourceType, id string) string {
	return resourceType + "/" + id
}

func clone(rec types.Record) types.Record {
	rec.Payload = slices.Clone(rec.Payload)
	return rec
}

// Create stores a new record at Version 1. An empty ID is replaced by a random UUID.
//
// Returns:
//   - types.Record: Stored record
//   - error: ErrRecordExists, or a rule rejection
func (s *Store) Create(ctx context.Context, rec types.Record) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.check(ctx, types.Record{}, rec); err != nil {
		return types.Record{}, err
	}

	rec = clone(rec)
	rec.Version = 1
	rec.UpdatedAt = s.now()

	k := key(rec.ResourceType, rec.ID)
	if _, loaded := s.records.LoadOrStore(k, rec); loaded {
		return types.Record{}, fmt.Errorf("%w: %s", types.ErrRecordExists, k)
	}

	s.undo(ctx, k, rec.Version, types.Record{}, false)

	return clone(rec), nil
}

// Read returns the current record.
func (s *Store) Read(ctx context.Context, resourceType, id string) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}

	rec, ok := s.records.Load(key(resourceType, id))
	if !ok {
		return types.Record{}, fmt.Errorf("%w: %s", types.ErrRecordNotFound, key(resourceType, id))
	}

	return clone(rec), nil
}

// Update replaces the record when rec.Version matches the stored version.
//
// Returns:
//   - types.Record: Stored record with Version incremented
//   - error: ErrRecordNotFound, ErrStaleRecord, or a rule rejection
func (s *Store) Update(ctx context.Context, rec types.Record) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}

	k := key(rec.ResourceType, rec.ID)
	var (
		prev    types.Record
		stored  types.Record
		opErr   error
		applied bool
	)

	s.records.Compute(k, func(cur types.Record, loaded bool) (types.Record, xsync.ComputeOp) {
		switch {
		case !loaded:
			opErr = fmt.Errorf("%w: %s", types.ErrRecordNotFound, k)
			return cur, xsync.CancelOp
		case cur.Version != rec.Version:
			opErr = fmt.Errorf("%w: %s at version %d, write based on %d", types.ErrStaleRecord, k, cur.Version, rec.Version)
			return cur, xsync.CancelOp
		}
		if err := s.check(ctx, cur, rec); err != nil {
			opErr = err
			return cur, xsync.CancelOp
		}

		prev = cur
		stored = clone(rec)
		stored.Version = cur.Version + 1
		stored.UpdatedAt = s.now()
		applied = true

		return stored, xsync.UpdateOp
	})
	if !applied {
		return types.Record{}, opErr
	}

	s.undo(ctx, k, stored.Version, prev, true)

	return clone(stored), nil
}

// Delete removes the record.
//
// Returns:
//   - error: ErrRecordNotFound when absent
func (s *Store) Delete(ctx context.Context, resourceType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k := key(resourceType, id)
	prev, ok := s.records.LoadAndDelete(k)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRecordNotFound, k)
	}

	s.undo(ctx, k, 0, prev, true)

	return nil
}

// List returns all records of resourceType ordered by ID.
func (s *Store) List(ctx context.Context, resourceType string) ([]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := resourceType + "/"
	var out []types.Record
	s.records.Range(func(k string, rec types.Record) bool {
		if strings.HasPrefix(k, prefix) {
			out = append(out, clone(rec))
		}

		return true
	})
	slices.SortFunc(out, func(a, b types.Record) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

// Len returns the number of stored records of every type.
func (s *Store) Len() int {
	return s.records.Size()
}

func (s *Store) check(ctx context.Context, prev, next types.Record) error {
	for _, rule := range s.rules {
		if err := rule(ctx, prev, next); err != nil {
			return err
		}
	}

	return nil
}

// undo registers a rollback hook restoring prev (or removing the key when !hadPrev).
// The hook only touches the key while it still holds the version this write produced
// (version 0 means the key was deleted by this write).
func (s *Store) undo(ctx context.Context, k string, version int64, prev types.Record, hadPrev bool) {
	_ = txn.OnRollback(ctx, func() {
		s.records.Compute(k, func(cur types.Record, loaded bool) (types.Record, xsync.ComputeOp) {
			if version == 0 {
				if loaded {
					return cur, xsync.CancelOp
				}

				return prev, xsync.UpdateOp
			}
			if !loaded || cur.Version != version {
				return cur, xsync.CancelOp
			}
			if !hadPrev {
				return cur, xsync.DeleteOp
			}

			return prev, xsync.UpdateOp
		})
	})
}
