package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordEventRouted("create", "ok")
	p.RecordEventRouted("create", "ok")
	p.RecordActivation("register", 0.002)
	p.RecordActivationConflict()
	p.RecordRegistrySize(4)
	p.RecordRegistryMutation("register", true)
	p.RecordDeferred("deferred")

	require.InDelta(t, 2, testutil.ToFloat64(p.eventsRouted.WithLabelValues("create", "ok")), 0.0001)
	require.InDelta(t, 1, testutil.ToFloat64(p.activations.WithLabelValues("register")), 0.0001)
	require.InDelta(t, 1, testutil.ToFloat64(p.activationConflicts), 0.0001)
	require.InDelta(t, 4, testutil.ToFloat64(p.registrySize), 0.0001)
	require.InDelta(t, 1, testutil.ToFloat64(p.registryMutations.WithLabelValues("register", "true")), 0.0001)
	require.InDelta(t, 1, testutil.ToFloat64(p.deferred.WithLabelValues("deferred")), 0.0001)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewPrometheus_Defaults(t *testing.T) {
	p := NewPrometheus(nil, "")

	require.Equal(t, "subwatch", p.namespace)
	require.Equal(t, prometheus.DefaultRegisterer, p.reg)
}
