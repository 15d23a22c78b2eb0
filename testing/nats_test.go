package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(time.Second))
	require.True(t, ns.JetStreamEnabled())
}

// TestStartEmbeddedNATS_Parallel verifies that parallel servers do not collide on ports.
func TestStartEmbeddedNATS_Parallel(t *testing.T) {
	t.Parallel()

	for range 3 {
		t.Run("parallel", func(t *testing.T) {
			t.Parallel()

			_, nc := StartEmbeddedNATS(t)
			require.True(t, nc.IsConnected())
		})
	}
}

func TestCreateJetStreamKV_Isolation(t *testing.T) {
	ctx := t.Context()
	_, nc := StartEmbeddedNATS(t)

	kv1 := CreateJetStreamKV(t, nc, "bucket-1")
	kv2 := CreateJetStreamKV(t, nc, "bucket-2")

	_, err := kv1.Put(ctx, "key", []byte("value1"))
	require.NoError(t, err)
	_, err = kv2.Put(ctx, "key", []byte("value2"))
	require.NoError(t, err)

	entry1, err := kv1.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value1"), entry1.Value())

	entry2, err := kv2.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value2"), entry2.Value())
}

func TestStartJetStream(t *testing.T) {
	js := StartJetStream(t)

	kv, err := js.KeyValue(t.Context(), "missing")
	require.Error(t, err)
	require.Nil(t, kv)
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	logger.Info("hello", "key", "value")
}
