package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/instancecache/locktable"
)

// recorder is a DiscardStrategy that records every call.
type recorder[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]int
	vals  []V
	order []K

	// hook, when set, runs inside DiscardObject and decides its result.
	hook func(k K, v V) error
}

func newRecorder[K comparable, V any]() *recorder[K, V] {
	return &recorder[K, V]{calls: make(map[K]int)}
}

func (r *recorder[K, V]) DiscardObject(k K, v V) error {
	r.mu.Lock()
	r.calls[k]++
	r.vals = append(r.vals, v)
	r.order = append(r.order, k)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		return hook(k, v)
	}
	return nil
}

func (r *recorder[K, V]) count(k K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[k]
}

func (r *recorder[K, V]) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *recorder[K, V]) keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]K(nil), r.order...)
}

// countingTable wraps a lock table and counts GetLock calls.
type countingTable[K comparable] struct {
	locktable.Table[K]
	gets atomic.Int64
}

func (t *countingTable[K]) GetLock(k K) locktable.Handle {
	t.gets.Add(1)
	return t.Table.GetLock(k)
}

// countingMetrics records every hook invocation.
type countingMetrics struct {
	hits, misses, discardFailures atomic.Int64
	mu                            sync.Mutex
	evicts                        map[EvictReason]int
	lastSize                      atomic.Int64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{evicts: make(map[EvictReason]int)}
}

func (m *countingMetrics) Hit()            { m.hits.Add(1) }
func (m *countingMetrics) Miss()           { m.misses.Add(1) }
func (m *countingMetrics) DiscardFailure() { m.discardFailures.Add(1) }
func (m *countingMetrics) Size(n int)      { m.lastSize.Store(int64(n)) }
func (m *countingMetrics) Evict(r EvictReason) {
	m.mu.Lock()
	m.evicts[r]++
	m.mu.Unlock()
}

func (m *countingMetrics) evictCount(r EvictReason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evicts[r]
}

// mustNew builds a cache and registers Close as cleanup.
func mustNew[K comparable, V any](t *testing.T, opt Options[K, V]) Cache[K, V] {
	t.Helper()
	c, err := New(opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func mustPut[K comparable, V any](t *testing.T, c Cache[K, V], k K, v V) {
	t.Helper()
	_, _, err := c.Put(k, v)
	require.NoError(t, err)
}
