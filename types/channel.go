package types

import "strings"

// ChannelType identifies the transport a subscription is delivered over.
type ChannelType int

const (
	// ChannelUnknown covers missing or unrecognized channel codes.
	ChannelUnknown ChannelType = iota
	// ChannelRestHook delivers notifications with an HTTP callback.
	ChannelRestHook
	// ChannelWebsocket delivers notifications over a websocket.
	ChannelWebsocket
	// ChannelEmail delivers notifications by email.
	ChannelEmail
	// ChannelSMS delivers notifications by SMS.
	ChannelSMS
	// ChannelMessage delivers notifications as messages to an endpoint.
	ChannelMessage
)

// String returns the wire code of the channel type.
func (c ChannelType) String() string {
	switch c {
	case ChannelRestHook:
		return "rest-hook"
	case ChannelWebsocket:
		return "websocket"
	case ChannelEmail:
		return "email"
	case ChannelSMS:
		return "sms"
	case ChannelMessage:
		return "message"
	default:
		return "unknown"
	}
}

// ParseChannelType converts a wire code into a ChannelType.
//
// Matching is case-insensitive. Unrecognized codes map to ChannelUnknown.
func ParseChannelType(code string) ChannelType {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "rest-hook":
		return ChannelRestHook
	case "websocket":
		return ChannelWebsocket
	case "email":
		return ChannelEmail
	case "sms":
		return ChannelSMS
	case "message":
		return ChannelMessage
	default:
		return ChannelUnknown
	}
}

// ChannelSet is an immutable set of supported channel types.
type ChannelSet map[ChannelType]struct{}

// NewChannelSet builds a set from the given channel types.
func NewChannelSet(channels ...ChannelType) ChannelSet {
	set := make(ChannelSet, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}

	return set
}

// Contains reports whether c is in the set. ChannelUnknown is never contained.
func (s ChannelSet) Contains(c ChannelType) bool {
	if c == ChannelUnknown {
		return false
	}
	_, ok := s[c]

	return ok
}
