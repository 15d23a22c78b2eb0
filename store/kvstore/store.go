// Package kvstore provides a types.RecordStore on a NATS JetStream KeyValue bucket.
//
// Each record is one key, "<resourceType>.<id>" with both parts escaped, holding the
// raw payload. Record.Version is the KV revision of the key's latest write, so
// optimistic concurrency maps directly onto KeyValue.Update.
//
// Store also implements types.ChangeSource: Watch turns the bucket's change stream
// into change events, which lets an engine observe writes made by other processes.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/subwatch/internal/kvutil"
	"github.com/arloliu/subwatch/internal/logging"
	"github.com/arloliu/subwatch/txn"
	"github.com/arloliu/subwatch/types"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the bucket name used by Open when none is given.
const DefaultBucket = "subwatch-records"

const undoTimeout = 5 * time.Second

// Store is a record store backed by a JetStream KeyValue bucket.
type Store struct {
	kv     jetstream.KeyValue
	logger types.Logger
}

// Compile-time assertions that Store implements RecordStore and ChangeSource.
var (
	_ types.RecordStore  = (*Store)(nil)
	_ types.ChangeSource = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an existing bucket.
func New(kv jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{kv: kv, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open creates or opens the bucket and returns a store on it.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - cfg: Bucket configuration; an empty Bucket defaults to DefaultBucket
//   - opts: Store options
//
// Returns:
//   - *Store: Ready store
//   - error: Bucket creation failure
func Open(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Description == "" {
		cfg.Description = "subwatch durable records"
	}

	kv, err := kvutil.EnsureBucket(ctx, js, cfg, 3)
	if err != nil {
		return nil, err
	}

	return New(kv, opts...), nil
}

// Bucket returns the underlying bucket.
func (s *Store) Bucket() jetstream.KeyValue {
	return s.kv
}

// Create writes a new key. An empty ID is replaced by a random UUID.
func (s *Store) Create(ctx context.Context, rec types.Record) (types.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	key := kvutil.RecordKey(rec.ResourceType, rec.ID)
	rev, err := s.kv.Create(ctx, key, rec.Payload)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return types.Record{}, fmt.Errorf("%w: %s/%s", types.ErrRecordExists, rec.ResourceType, rec.ID)
		}

		return types.Record{}, fmt.Errorf("create record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}

	rec.Version = int64(rev) //nolint:gosec // KV revisions stay far below MaxInt64
	rec.UpdatedAt = time.Now().UTC()
	rec.Payload = slices.Clone(rec.Payload)

	s.onRollback(ctx, "create", key, func(undoCtx context.Context) error {
		return s.kv.Delete(undoCtx, key, jetstream.LastRevision(rev))
	})

	return rec, nil
}

// Read returns the latest value of the record's key.
func (s *Store) Read(ctx context.Context, resourceType, id string) (types.Record, error) {
	entry, err := s.kv.Get(ctx, kvutil.RecordKey(resourceType, id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return types.Record{}, fmt.Errorf("%w: %s/%s", types.ErrRecordNotFound, resourceType, id)
		}

		return types.Record{}, fmt.Errorf("read record %s/%s: %w", resourceType, id, err)
	}

	return recordFromEntry(resourceType, id, entry), nil
}

// Update writes rec when rec.Version is still the key's latest revision.
//
// Returns:
//   - types.Record: Stored record carrying the new revision
//   - error: ErrRecordNotFound or ErrStaleRecord
func (s *Store) Update(ctx context.Context, rec types.Record) (types.Record, error) {
	key := kvutil.RecordKey(rec.ResourceType, rec.ID)

	var prev []byte
	if txn.IsActive(ctx) {
		entry, err := s.kv.Get(ctx, key)
		if err == nil && int64(entry.Revision()) == rec.Version { //nolint:gosec // see Create
			prev = entry.Value()
		}
	}

	rev, err := s.kv.Update(ctx, key, rec.Payload, uint64(rec.Version)) //nolint:gosec // versions come from KV revisions
	if err != nil {
		return types.Record{}, s.classifyUpdateError(ctx, rec, err)
	}

	rec.Version = int64(rev) //nolint:gosec // see Create
	rec.UpdatedAt = time.Now().UTC()
	rec.Payload = slices.Clone(rec.Payload)

	if prev != nil {
		s.onRollback(ctx, "update", key, func(undoCtx context.Context) error {
			_, err := s.kv.Update(undoCtx, key, prev, rev)
			return err
		})
	}

	return rec, nil
}

// classifyUpdateError maps a failed conditional update onto the store errors.
func (s *Store) classifyUpdateError(ctx context.Context, rec types.Record, cause error) error {
	entry, err := s.kv.Get(ctx, kvutil.RecordKey(rec.ResourceType, rec.ID))
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return fmt.Errorf("%w: %s/%s", types.ErrRecordNotFound, rec.ResourceType, rec.ID)
	case err == nil && int64(entry.Revision()) != rec.Version: //nolint:gosec // see Create
		return fmt.Errorf("%w: %s/%s at revision %d, write based on %d",
			types.ErrStaleRecord, rec.ResourceType, rec.ID, entry.Revision(), rec.Version)
	default:
		return fmt.Errorf("update record %s/%s: %w", rec.ResourceType, rec.ID, cause)
	}
}

// Delete removes the record's key.
func (s *Store) Delete(ctx context.Context, resourceType, id string) error {
	key := kvutil.RecordKey(resourceType, id)

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", types.ErrRecordNotFound, resourceType, id)
		}

		return fmt.Errorf("delete record %s/%s: %w", resourceType, id, err)
	}

	if err := s.kv.Delete(ctx, key, jetstream.LastRevision(entry.Revision())); err != nil {
		return fmt.Errorf("delete record %s/%s: %w", resourceType, id, err)
	}

	prev := entry.Value()
	s.onRollback(ctx, "delete", key, func(undoCtx context.Context) error {
		_, err := s.kv.Create(undoCtx, key, prev)
		return err
	})

	return nil
}

// List returns every live record of resourceType ordered by ID.
func (s *Store) List(ctx context.Context, resourceType string) ([]types.Record, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("list records %s: %w", resourceType, err)
	}
	defer func() { _ = lister.Stop() }()

	prefix := kvutil.EncodeToken(resourceType) + "."
	var out []types.Record
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		_, id, err := kvutil.SplitRecordKey(key)
		if err != nil {
			s.logger.Warn("skipping malformed record key", "key", key, "error", err)
			continue
		}

		entry, err := s.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list records %s: %w", resourceType, err)
		}
		out = append(out, recordFromEntry(resourceType, id, entry))
	}
	slices.SortFunc(out, func(a, b types.Record) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

// onRollback undoes a write if the ambient txn scope rolls back.
//
// The bucket has no transactions of its own; undo is best effort and guarded by
// revision so it never clobbers a later writer.
func (s *Store) onRollback(ctx context.Context, op, key string, undo func(ctx context.Context) error) {
	_ = txn.OnRollback(ctx, func() {
		undoCtx, cancel := context.WithTimeout(context.Background(), undoTimeout)
		defer cancel()

		if err := undo(undoCtx); err != nil {
			s.logger.Warn("failed to undo record write on rollback", "op", op, "key", key, "error", err)
		}
	})
}

func recordFromEntry(resourceType, id string, entry jetstream.KeyValueEntry) types.Record {
	return types.Record{
		ID:           id,
		ResourceType: resourceType,
		Version:      int64(entry.Revision()), //nolint:gosec // see Create
		Payload:      slices.Clone(entry.Value()),
		UpdatedAt:    entry.Created().UTC(),
	}
}
