// Package canonical converts raw JSON subscription records into their canonical form.
//
// The expected payload shape is:
//
//	{
//	  "resourceType": "Subscription",
//	  "id": "S1",
//	  "status": "requested",
//	  "criteria": "Patient?name=Smith",
//	  "error": "",
//	  "channel": {"type": "rest-hook", "endpoint": "https://example.org/hook"}
//	}
//
// Only the fields above are read. Status write-back patches the raw document in place
// so unknown fields survive the round trip.
package canonical

import (
	"fmt"

	"github.com/arloliu/subwatch/types"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Field paths read from subscription payloads.
const (
	PathResourceType    = "resourceType"
	PathID              = "id"
	PathStatus          = "status"
	PathCriteria        = "criteria"
	PathError           = "error"
	PathChannelType     = "channel.type"
	PathChannelEndpoint = "channel.endpoint"
)

// JSONCanonicalizer implements types.Canonicalizer for JSON payloads.
type JSONCanonicalizer struct{}

// Compile-time assertion that JSONCanonicalizer implements Canonicalizer.
var _ types.Canonicalizer = JSONCanonicalizer{}

// New returns a JSON canonicalizer.
func New() JSONCanonicalizer {
	return JSONCanonicalizer{}
}

// Canonicalize builds the canonical view of a subscription record.
//
// Parameters:
//   - rec: Raw record; ResourceType must be "Subscription"
//
// Returns:
//   - types.CanonicalSubscription: Normalized subscription
//   - error: ErrNotSubscription or ErrMalformedPayload
func (JSONCanonicalizer) Canonicalize(rec types.Record) (types.CanonicalSubscription, error) {
	if rec.ResourceType != types.SubscriptionResourceType {
		return types.CanonicalSubscription{}, fmt.Errorf("%w: %q", types.ErrNotSubscription, rec.ResourceType)
	}
	if !gjson.ValidBytes(rec.Payload) {
		return types.CanonicalSubscription{}, fmt.Errorf("%w: subscription %s", types.ErrMalformedPayload, rec.ID)
	}

	doc := gjson.ParseBytes(rec.Payload)
	if !doc.IsObject() {
		return types.CanonicalSubscription{}, fmt.Errorf("%w: subscription %s is not an object", types.ErrMalformedPayload, rec.ID)
	}
	if rt := doc.Get(PathResourceType); rt.Exists() && rt.String() != types.SubscriptionResourceType {
		return types.CanonicalSubscription{}, fmt.Errorf("%w: payload resourceType %q", types.ErrNotSubscription, rt.String())
	}

	id := rec.ID
	if id == "" {
		id = doc.Get(PathID).String()
	}

	return types.CanonicalSubscription{
		ID:          id,
		ChannelType: types.ParseChannelType(doc.Get(PathChannelType).String()),
		Endpoint:    doc.Get(PathChannelEndpoint).String(),
		Status:      types.ParseStatus(doc.Get(PathStatus).String()),
		Criteria:    doc.Get(PathCriteria).String(),
		ErrorReason: doc.Get(PathError).String(),
		Version:     rec.Version,
	}, nil
}

// WithStatus returns a copy of rec whose payload carries the given status.
//
// A non-empty reason is written to the error field. Moving to any status other
// than Error without a reason clears a previous error.
func (JSONCanonicalizer) WithStatus(rec types.Record, status types.SubscriptionStatus, reason string) (types.Record, error) {
	if !gjson.ValidBytes(rec.Payload) {
		return types.Record{}, fmt.Errorf("%w: subscription %s", types.ErrMalformedPayload, rec.ID)
	}

	payload, err := sjson.SetBytes(append([]byte(nil), rec.Payload...), PathStatus, status.String())
	if err != nil {
		return types.Record{}, fmt.Errorf("set status: %w", err)
	}

	switch {
	case reason != "":
		payload, err = sjson.SetBytes(payload, PathError, reason)
	case status != types.StatusError:
		payload, err = sjson.DeleteBytes(payload, PathError)
	}
	if err != nil {
		return types.Record{}, fmt.Errorf("set error reason: %w", err)
	}

	out := rec
	out.Payload = payload

	return out, nil
}
