package types

// SubscriptionResourceType is the resource-type tag of subscription records.
const SubscriptionResourceType = "Subscription"

// CanonicalSubscription is the normalized, storage-agnostic view of a subscription record.
//
// It is built by a Canonicalizer from a raw Record and owned transiently by the engine
// for the duration of one activation decision. It is never persisted directly.
type CanonicalSubscription struct {
	// ID is the subscription identity (record ID without resource type).
	ID string

	// ChannelType is the delivery transport.
	ChannelType ChannelType

	// Endpoint is the channel endpoint (URL, address), informational only.
	Endpoint string

	// Status is the persisted lifecycle status.
	Status SubscriptionStatus

	// Criteria is the filter expression, e.g. "Patient?name=Smith".
	Criteria string

	// ErrorReason holds the failure message when Status is StatusError.
	ErrorReason string

	// Version is the revision of the record the subscription was built from.
	Version int64
}
