package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		code string
		want SubscriptionStatus
	}{
		{"requested", StatusRequested},
		{"ACTIVE", StatusActive},
		{" error ", StatusError},
		{"off", StatusOff},
		{"entered-in-error", StatusUnknown},
		{"", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			require.Equal(t, tt.want, ParseStatus(tt.code))
		})
	}
}

func TestCanActivate(t *testing.T) {
	require.True(t, CanActivate(StatusRequested))

	for _, s := range []SubscriptionStatus{StatusUnknown, StatusActive, StatusError, StatusOff} {
		require.False(t, CanActivate(s), "status %s must not activate", s)
	}
}

func TestChannelSet(t *testing.T) {
	set := NewChannelSet(ChannelRestHook, ChannelWebsocket)

	require.True(t, set.Contains(ChannelRestHook))
	require.True(t, set.Contains(ParseChannelType("WebSocket")))
	require.False(t, set.Contains(ChannelEmail))
	require.False(t, set.Contains(ChannelUnknown))
	require.False(t, NewChannelSet(ChannelUnknown).Contains(ChannelUnknown))
}

func TestResourceChangedEvent_PayloadIsCopied(t *testing.T) {
	rec := Record{ID: "S1", ResourceType: SubscriptionResourceType, Payload: []byte(`{"status":"requested"}`)}
	ev := NewCreateEvent(rec)
	rec.Payload[0] = 'X'

	got, ok := ev.Payload()
	require.True(t, ok)
	require.Equal(t, `{"status":"requested"}`, string(got.Payload))
	require.Equal(t, OperationCreate, ev.Operation())
	require.Equal(t, "S1", ev.ID())

	del := NewDeleteEvent(SubscriptionResourceType, "S1")
	_, ok = del.Payload()
	require.False(t, ok)
	require.Equal(t, "delete", del.Operation().String())
}
