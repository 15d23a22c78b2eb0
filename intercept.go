package subwatch

import (
	"context"
	"fmt"

	"github.com/arloliu/subwatch/types"
)

// InterceptingStore is the write path for callers: a RecordStore that validates
// subscription criteria before writing and routes each successful write through the
// engine.
//
// Writes under a txn scope activate after that scope commits. A write whose routing
// fails after the record was written still returns the stored record along with the
// error, so the caller can decide whether to roll back.
type InterceptingStore struct {
	next   types.RecordStore
	engine *Engine
}

// Compile-time assertion that InterceptingStore implements RecordStore.
var _ types.RecordStore = (*InterceptingStore)(nil)

// Intercept wraps the engine's store with validation and routing.
//
// Returns:
//   - *InterceptingStore: Decorated store sharing the engine's durable store
func (e *Engine) Intercept() *InterceptingStore {
	return &InterceptingStore{next: e.store, engine: e}
}

// Create validates, stores and routes a CREATE.
//
// Returns:
//   - types.Record: Stored record
//   - error: *ValidationError (nothing written), a store error, or a routing error
func (s *InterceptingStore) Create(ctx context.Context, rec types.Record) (types.Record, error) {
	if err := s.engine.ValidateCriteria(rec); err != nil {
		return types.Record{}, err
	}

	saved, err := s.next.Create(ctx, rec)
	if err != nil {
		return types.Record{}, err
	}

	if err := s.engine.ResourceCreated(ctx, saved); err != nil {
		return saved, fmt.Errorf("route create of %s/%s: %w", saved.ResourceType, saved.ID, err)
	}

	return saved, nil
}

// Read passes through to the underlying store.
func (s *InterceptingStore) Read(ctx context.Context, resourceType, id string) (types.Record, error) {
	return s.next.Read(ctx, resourceType, id)
}

// Update validates, stores and routes an UPDATE.
//
// Returns:
//   - types.Record: Stored record
//   - error: *ValidationError (nothing written), a store error, or a routing error
func (s *InterceptingStore) Update(ctx context.Context, rec types.Record) (types.Record, error) {
	if err := s.engine.ValidateCriteria(rec); err != nil {
		return types.Record{}, err
	}

	saved, err := s.next.Update(ctx, rec)
	if err != nil {
		return types.Record{}, err
	}

	if err := s.engine.ResourceUpdated(ctx, saved); err != nil {
		return saved, fmt.Errorf("route update of %s/%s: %w", saved.ResourceType, saved.ID, err)
	}

	return saved, nil
}

// Delete removes the record and unregisters it if it was a subscription.
func (s *InterceptingStore) Delete(ctx context.Context, resourceType, id string) error {
	if err := s.next.Delete(ctx, resourceType, id); err != nil {
		return err
	}

	return s.engine.ResourceDeleted(ctx, resourceType, id)
}

// List passes through to the underlying store.
func (s *InterceptingStore) List(ctx context.Context, resourceType string) ([]types.Record, error) {
	return s.next.List(ctx, resourceType)
}
