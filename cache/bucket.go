package cache

import (
	"sync"

	"github.com/IvanBrykalov/instancecache/internal/util"
	"github.com/IvanBrykalov/instancecache/policy"
)

// bucket is an independent partition of the key space with its own lock.
// Its lock is the only arbiter of mutation for the entries it holds and is
// always the innermost lock: nothing else is acquired while it is held.
type bucket[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]*entry[K, V]
	_  util.CacheLinePad
}

func newBucket[K comparable, V any](hint int) *bucket[K, V] {
	return &bucket[K, V]{m: make(map[K]*entry[K, V], hint)}
}

// get returns the value and refreshes recency at seq on hit.
func (b *bucket[K, V]) get(k K, seq func() uint64) (V, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.m[k]
	if !ok {
		var zero V
		return zero, false
	}
	e.touch(seq())
	return e.val, true
}

// put inserts k→v or replaces the value in place. Replacement counts as a
// re-access and keeps the entry's pins.
func (b *bucket[K, V]) put(k K, v V, seq uint64) (prev V, replaced bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.m[k]; ok {
		prev = e.val
		e.val = v
		e.touch(seq)
		return prev, true
	}
	b.m[k] = newEntry(k, v, seq)
	return prev, false
}

// remove deletes k unconditionally (pins are ignored).
func (b *bucket[K, V]) remove(k K) (*entry[K, V], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.m[k]
	if !ok {
		return nil, false
	}
	delete(b.m, k)
	return e, true
}

// removeEvictable re-validates that k is still present and unpinned and
// removes it. It is the second step of the eviction protocol: a victim may
// have been pinned or removed since the strategy selected it.
func (b *bucket[K, V]) removeEvictable(k K) (*entry[K, V], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.m[k]
	if !ok || e.pins > 0 {
		return nil, false
	}
	delete(b.m, k)
	return e, true
}

func (b *bucket[K, V]) pin(k K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.m[k]
	if !ok {
		return false
	}
	e.pins++
	return true
}

// unpin never drives the pin count negative.
func (b *bucket[K, V]) unpin(k K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.m[k]
	if !ok || e.pins == 0 {
		return false
	}
	e.pins--
	return true
}

// snapshot appends a consistent view of this bucket to dst.
func (b *bucket[K, V]) snapshot(dst []policy.Candidate[K]) []policy.Candidate[K] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, e := range b.m {
		dst = append(dst, e.candidate())
	}
	return dst
}

// keys appends the resident keys to dst.
func (b *bucket[K, V]) keys(dst []K) []K {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for k := range b.m {
		dst = append(dst, k)
	}
	return dst
}
