package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the subwatch library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Engine, Criteria, Store, Deferred, etc.)
//   - Use consistent messages across similar error types

// Engine errors - Public API errors returned by the Engine component.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreRequired is returned when the record store is nil.
	ErrStoreRequired = errors.New("record store is required")

	// ErrAlreadyStarted is returned when Start is called on an already running engine.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrNotStarted is returned when operations require a started engine.
	ErrNotStarted = errors.New("engine not started")
)

// Criteria errors - Criteria validation and matcher compilation errors.
var (
	// ErrInvalidCriteria is the root cause of every ValidationError.
	ErrInvalidCriteria = errors.New("invalid subscription criteria")

	// ErrUnknownResourceType is returned when criteria name a resource type outside the catalog.
	ErrUnknownResourceType = errors.New("unknown resource type")

	// ErrMalformedQuery is returned when the criteria query cannot be translated.
	ErrMalformedQuery = errors.New("malformed criteria query")
)

// Canonicalizer errors.
var (
	// ErrNotSubscription is returned when a non-subscription record is canonicalized.
	ErrNotSubscription = errors.New("record is not a subscription")

	// ErrMalformedPayload is returned when a record payload is not a JSON object.
	ErrMalformedPayload = errors.New("malformed record payload")
)

// Store errors - Durable record store errors.
var (
	// ErrRecordNotFound is returned when a record does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists is returned when creating a record whose identity is taken.
	ErrRecordExists = errors.New("record already exists")

	// ErrStaleRecord is returned when an update carries an outdated version.
	ErrStaleRecord = errors.New("stale record version")
)

// Deferred execution errors.
var (
	// ErrNoTransaction is returned when registering a commit hook without an active transaction.
	ErrNoTransaction = errors.New("no active transaction")

	// ErrTransactionClosed is returned when a transaction scope is used after commit or rollback.
	ErrTransactionClosed = errors.New("transaction already closed")

	// ErrQueueFull is returned when the worker pool cannot accept more tasks.
	ErrQueueFull = errors.New("worker pool queue is full")

	// ErrPoolClosed is returned when submitting to a stopped worker pool.
	ErrPoolClosed = errors.New("worker pool is closed")
)

// ValidationError reports subscription criteria that cannot be translated into a matcher.
//
// It is surfaced synchronously to the write that carried the criteria and causes the
// write to be rejected.
type ValidationError struct {
	// Criteria is the rejected criteria string.
	Criteria string

	// Cause describes why translation failed.
	Cause error
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid subscription criteria submitted: %s: %v", e.Criteria, e.Cause)
}

// Unwrap exposes both the ErrInvalidCriteria sentinel and the underlying cause.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidCriteria, e.Cause}
}

// NewValidationError builds a ValidationError for criteria with the given cause.
func NewValidationError(criteria string, cause error) *ValidationError {
	return &ValidationError{Criteria: criteria, Cause: cause}
}

// RejectedError reports a write rejected by a store business rule.
type RejectedError struct {
	// Reason is a human readable description of the rule that rejected the write.
	Reason string
}

// Error implements error.
func (e *RejectedError) Error() string {
	return "write rejected: " + e.Reason
}

// IsRejected reports whether err is, or wraps, a *RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError

	return errors.As(err, &rejected)
}
