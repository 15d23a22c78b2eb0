package types

import "strings"

// SubscriptionStatus represents the persisted lifecycle status of a subscription.
//
// The engine observes the following progression:
//
//	Requested → Active | Error
//	Active    → Active (idempotent) | Off | Error
//
// Error is terminal from the engine's perspective: activation is never retried
// automatically, an external update must re-request the subscription.
type SubscriptionStatus int

const (
	// StatusUnknown covers missing or unrecognized status codes.
	// It is treated as "not active".
	StatusUnknown SubscriptionStatus = iota

	// StatusRequested indicates the subscription awaits activation.
	StatusRequested

	// StatusActive indicates the subscription is live and dispatch-ready.
	StatusActive

	// StatusError indicates activation or delivery failed; see the error reason.
	StatusError

	// StatusOff indicates the subscription was switched off.
	StatusOff
)

// Wire codes for subscription statuses.
const (
	StatusCodeRequested = "requested"
	StatusCodeActive    = "active"
	StatusCodeError     = "error"
	StatusCodeOff       = "off"
)

// String returns the wire code of the status.
func (s SubscriptionStatus) String() string {
	switch s {
	case StatusRequested:
		return StatusCodeRequested
	case StatusActive:
		return StatusCodeActive
	case StatusError:
		return StatusCodeError
	case StatusOff:
		return StatusCodeOff
	default:
		return "unknown"
	}
}

// ParseStatus converts a wire code into a SubscriptionStatus.
//
// Matching is case-insensitive. Unrecognized codes map to StatusUnknown.
func ParseStatus(code string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case StatusCodeRequested:
		return StatusRequested
	case StatusCodeActive:
		return StatusActive
	case StatusCodeError:
		return StatusError
	case StatusCodeOff:
		return StatusOff
	default:
		return StatusUnknown
	}
}

// CanActivate reports whether a subscription in status from may transition to Active.
//
// Only Requested subscriptions may be activated.
func CanActivate(from SubscriptionStatus) bool {
	return from == StatusRequested
}
