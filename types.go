package subwatch

import "github.com/arloliu/subwatch/types"

// Re-export types from the types package.
//
// Subpackages depend on types rather than on the root package, which keeps the
// import graph acyclic while callers still write subwatch.Record, subwatch.Logger and
// so on.
type (
	State                 = types.State
	Record                = types.Record
	CanonicalSubscription = types.CanonicalSubscription
	SubscriptionStatus    = types.SubscriptionStatus
	ChannelType           = types.ChannelType
	Action                = types.Action
	ResourceChangedEvent  = types.ResourceChangedEvent
	ValidationError       = types.ValidationError
	RejectedError         = types.RejectedError
)

// Re-export interfaces from the types package for convenience.
type (
	RecordStore      = types.RecordStore
	Canonicalizer    = types.Canonicalizer
	ChangeSource     = types.ChangeSource
	ChangeFeed       = types.ChangeFeed
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export State constants from the types package.
const (
	StateInit      = types.StateInit
	StateResyncing = types.StateResyncing
	StateRunning   = types.StateRunning
	StateStopping  = types.StateStopping
	StateStopped   = types.StateStopped
)

// Re-export subscription status constants from the types package.
const (
	StatusRequested = types.StatusRequested
	StatusActive    = types.StatusActive
	StatusError     = types.StatusError
	StatusOff       = types.StatusOff
)

// SubscriptionResourceType is the resource type tag of subscription records.
const SubscriptionResourceType = types.SubscriptionResourceType
