package cache

import (
	"sync/atomic"

	"github.com/IvanBrykalov/instancecache/policy"
)

// entry is one resident key/value owned by a bucket.
type entry[K comparable, V any] struct {
	key K
	val V // guarded by the bucket lock

	// Cache sequence number at insertion; orders ties for the strategy.
	inserted uint64

	// Recency bookkeeping. Atomic so that Get can refresh it under the
	// bucket's read lock.
	lastAccess atomic.Uint64
	hits       atomic.Uint32

	// pins > 0 means "in use, not evictable". Guarded by the bucket lock.
	pins int32
}

func newEntry[K comparable, V any](k K, v V, seq uint64) *entry[K, V] {
	e := &entry[K, V]{key: k, val: v, inserted: seq}
	e.lastAccess.Store(seq)
	return e
}

// touch records a re-access at sequence seq. Concurrent readers may race;
// lastAccess only ever moves forward.
func (e *entry[K, V]) touch(seq uint64) {
	for {
		cur := e.lastAccess.Load()
		if seq <= cur || e.lastAccess.CompareAndSwap(cur, seq) {
			break
		}
	}
	e.hits.Add(1)
}

// candidate returns the strategy-facing view. Caller holds the bucket lock.
func (e *entry[K, V]) candidate() policy.Candidate[K] {
	return policy.Candidate[K]{
		Key:        e.key,
		Inserted:   e.inserted,
		LastAccess: e.lastAccess.Load(),
		Hits:       e.hits.Load(),
		Pinned:     e.pins > 0,
	}
}
