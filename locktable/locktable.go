// Package locktable issues one canonical, reference-counted lock per key.
//
// Locks are created lazily by GetLock and reclaimed once every handle that
// referenced them has been released, so unrelated keys never contend and the
// registry does not grow with the key space. The registry itself is split into
// power-of-two shards, each guarded by its own mutex.
//
// Go has no goroutine identity, so reentrancy is expressed in two ways:
//
//   - per handle: a handle that already holds its lock may Lock it again;
//   - per logical owner: an *Owner carried in the context (WithOwner) lets a
//     different handle re-enter a lock already held by the same owner. This is
//     how a container hands its own lock ownership to the cache eviction path.
//
// Typical use:
//
//	t := locktable.New[string](locktable.Options[string]{})
//	h := t.GetLock("bean-42")
//	defer h.Release()
//	if err := h.Lock(ctx); err != nil {
//	    return err
//	}
//	defer h.Unlock()
package locktable

import (
	"context"
	"sync"

	"github.com/IvanBrykalov/instancecache/internal/util"
)

// Table is a registry of per-key locks. Safe for concurrent use.
type Table[K comparable] interface {
	// GetLock returns a new handle referencing the unique lock for key.
	// The handle holds a reference until Release is called.
	GetLock(key K) Handle

	// Len reports the number of live (referenced) lock entries.
	Len() int
}

// Handle references the lock for one key. A handle is owned by a single
// logical holder and must not be used from several goroutines at once.
type Handle interface {
	// Lock blocks until the lock is acquired or ctx is done.
	// Re-entrant for the same handle and for the Owner carried by ctx.
	Lock(ctx context.Context) error
	// TryLock acquires the lock without blocking. Re-entrant for the same handle.
	TryLock() bool
	// Unlock undoes one successful Lock/TryLock. Panics if the handle holds nothing.
	Unlock()
	// Held reports whether this handle currently holds the lock.
	Held() bool
	// Release drops the reference. Panics if the handle still holds the lock.
	// Release is idempotent.
	Release()
}

// Options configures a Table. Zero values are safe.
type Options[K comparable] struct {
	// Shards is the number of registry shards (rounded up to a power of two).
	// 0 picks a value from GOMAXPROCS.
	Shards int
	// Hash maps keys to shards. Nil => util.Hash.
	Hash func(K) uint64
}

type table[K comparable] struct {
	shards []*tableShard[K]
	hash   func(K) uint64
}

type tableShard[K comparable] struct {
	mu sync.Mutex
	m  map[K]*lockEntry[K]
	_  util.CacheLinePad
}

// New constructs a lock table.
func New[K comparable](opt Options[K]) Table[K] {
	n := util.ShardCount(opt.Shards)
	t := &table[K]{
		shards: make([]*tableShard[K], n),
		hash:   opt.Hash,
	}
	if t.hash == nil {
		t.hash = util.Hash[K]
	}
	for i := range t.shards {
		t.shards[i] = &tableShard[K]{m: make(map[K]*lockEntry[K])}
	}
	return t
}

// GetLock looks up (or lazily creates) the lock for key and takes a reference.
func (t *table[K]) GetLock(key K) Handle {
	s := t.shardFor(key)
	s.mu.Lock()
	e, ok := s.m[key]
	if !ok {
		e = newLockEntry(key)
		s.m[key] = e
	}
	e.refs++
	s.mu.Unlock()
	return &handle[K]{t: t, e: e}
}

// Len returns the number of lock entries that still have references.
func (t *table[K]) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.m)
		s.mu.Unlock()
	}
	return total
}

func (t *table[K]) shardFor(key K) *tableShard[K] {
	return t.shards[util.ShardIndex(t.hash(key), len(t.shards))]
}

// release drops one reference and reclaims the entry when none remain.
func (t *table[K]) release(e *lockEntry[K]) {
	s := t.shardFor(e.key)
	s.mu.Lock()
	e.refs--
	if e.refs == 0 && s.m[e.key] == e {
		delete(s.m, e.key)
	}
	s.mu.Unlock()
}
