package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatKeyValues(t *testing.T) {
	tests := []struct {
		name string
		in   []any
		want string
	}{
		{"empty", nil, ""},
		{"pairs", []any{"subscription", "S1", "version", 2}, " subscription=S1 version=2"},
		{"dangling key", []any{"reason"}, " reason=<missing>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, formatKeyValues(tt.in))
		})
	}
}

func TestTestLogger_WithDoesNotShareFields(t *testing.T) {
	base := NewTest(t)
	a := base.With("subscription", "A").(*TestLogger)
	b := a.With("attempt", 1).(*TestLogger)

	require.Empty(t, base.fields)
	require.Equal(t, []any{"subscription", "A"}, a.fields)
	require.Equal(t, []any{"subscription", "A", "attempt", 1}, b.fields)

	b.Info("activation write conflicted, retrying")
}
