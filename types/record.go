package types

import (
	"context"
	"time"
)

// Record is a raw durable resource record.
//
// Payload is a JSON document; the engine only reads the fields its Canonicalizer knows.
type Record struct {
	// ID is the record identity, unique within ResourceType.
	ID string

	// ResourceType is the resource-type tag (e.g. "Subscription", "Patient").
	ResourceType string

	// Version is the optimistic-concurrency revision. Zero means "not yet persisted".
	Version int64

	// Payload is the JSON body of the record.
	Payload []byte

	// UpdatedAt is set by the store on every write.
	UpdatedAt time.Time
}

// RecordStore is the durable record store contract.
//
// Implementations participating in transactions must pick up the ambient transaction
// from the context (see package txn). Update must reject a stale Version with
// ErrStaleRecord and business-rule violations with a *RejectedError.
type RecordStore interface {
	// Create persists a new record and returns it with ID and Version assigned.
	Create(ctx context.Context, rec Record) (Record, error)

	// Read returns the current record or ErrRecordNotFound.
	Read(ctx context.Context, resourceType, id string) (Record, error)

	// Update replaces the record if rec.Version matches the stored revision.
	Update(ctx context.Context, rec Record) (Record, error)

	// Delete removes the record. Deleting a missing record returns ErrRecordNotFound.
	Delete(ctx context.Context, resourceType, id string) error

	// List returns all records of a resource type.
	List(ctx context.Context, resourceType string) ([]Record, error)
}

// Canonicalizer converts raw subscription records into their canonical form
// and writes status changes back into raw records.
type Canonicalizer interface {
	// Canonicalize builds the canonical view of a subscription record.
	Canonicalize(rec Record) (CanonicalSubscription, error)

	// WithStatus returns a copy of rec with status (and error reason, when non-empty) set.
	WithStatus(rec Record, status SubscriptionStatus, reason string) (Record, error)
}
