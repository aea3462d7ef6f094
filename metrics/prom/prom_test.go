package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/instancecache/cache"
)

// gathered flattens a registry into "name{reason}" -> value.
func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "reason" {
					name += "{" + lp.GetValue() + "}"
				}
			}
			switch {
			case m.GetCounter() != nil:
				out[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[name] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestAdapter_Exports(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "app", "instances", prometheus.Labels{"cache": "beans"})

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(cache.EvictCapacity)
	a.Evict(cache.EvictExplicit)
	a.Evict(cache.EvictShutdown)
	a.Evict(cache.EvictShutdown)
	a.DiscardFailure()
	a.Size(7)

	got := gathered(t, reg)
	require.Equal(t, 2.0, got["app_instances_hits_total"])
	require.Equal(t, 1.0, got["app_instances_misses_total"])
	require.Equal(t, 1.0, got["app_instances_evictions_total{capacity}"])
	require.Equal(t, 1.0, got["app_instances_evictions_total{explicit}"])
	require.Equal(t, 2.0, got["app_instances_evictions_total{shutdown}"])
	require.Equal(t, 1.0, got["app_instances_discard_failures_total"])
	require.Equal(t, 7.0, got["app_instances_size_entries"])
}

// The adapter plugs straight into a cache.
func TestAdapter_WithCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "", "cache", nil)

	c, err := cache.New(cache.Options[string, int]{
		Capacity: 1,
		Metrics:  a,
		Discard:  cache.DiscardFunc[string, int](func(string, int) error { return nil }),
	})
	require.NoError(t, err)

	_, _, err = c.Put("a", 1)
	require.NoError(t, err)
	_, _ = c.Get("a")
	_, _ = c.Get("b")
	_, _, err = c.Put("b", 2)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	got := gathered(t, reg)
	require.Equal(t, 1.0, got["cache_hits_total"])
	require.Equal(t, 1.0, got["cache_misses_total"])
	require.Equal(t, 1.0, got["cache_evictions_total{capacity}"])
	require.Equal(t, 1.0, got["cache_evictions_total{shutdown}"])
	require.Equal(t, 0.0, got["cache_size_entries"])
}

func TestAdapter_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = New(reg, "x", "y", nil)
	require.Panics(t, func() { _ = New(reg, "x", "y", nil) })
}
