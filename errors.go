package subwatch

import "github.com/arloliu/subwatch/types"

// Sentinel errors returned by the Engine.
//
// They alias the definitions in the types package so subpackages and callers compare
// against the same values with errors.Is.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrStoreRequired is returned when NewEngine receives a nil record store.
	ErrStoreRequired = types.ErrStoreRequired

	// ErrAlreadyStarted is returned when Start is called on an engine that was started before.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when the engine is not running.
	ErrNotStarted = types.ErrNotStarted

	// ErrInvalidCriteria matches every criteria validation failure.
	ErrInvalidCriteria = types.ErrInvalidCriteria

	// ErrUnknownResourceType is returned when criteria name a resource type outside the catalog.
	ErrUnknownResourceType = types.ErrUnknownResourceType

	// ErrNotSubscription is returned when a subscription-only operation receives another resource.
	ErrNotSubscription = types.ErrNotSubscription

	// ErrMalformedPayload is returned when a subscription payload cannot be read.
	ErrMalformedPayload = types.ErrMalformedPayload

	// ErrRecordNotFound is returned by stores for missing records.
	ErrRecordNotFound = types.ErrRecordNotFound

	// ErrStaleRecord is returned by stores on optimistic version mismatch.
	ErrStaleRecord = types.ErrStaleRecord

	// ErrQueueFull is reported when the activation worker pool cannot accept more work.
	ErrQueueFull = types.ErrQueueFull
)
