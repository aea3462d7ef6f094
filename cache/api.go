package cache

import (
	"context"

	"github.com/IvanBrykalov/instancecache/policy"
)

// Cache is a bounded, bucketed, concurrent cache of reusable object instances.
// All methods are safe for concurrent use by multiple goroutines.
//
// Entries that leave the cache through eviction, RemoveAndDiscard or Close are
// handed to the configured DiscardStrategy exactly once. Remove and same-key
// replacement never discard.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and a presence flag. A hit refreshes the
	// entry's recency; it does not pin the entry and never waits on the
	// eviction of other keys.
	Get(k K) (V, bool)

	// Put inserts or replaces k→v and returns the previous value, if any.
	// When the insert pushes the cache over capacity, Put runs eviction
	// before returning. Pinned victims are skipped (retried on a later
	// trigger). The only errors are ErrClosed and ErrCacheBusy; on
	// ErrCacheBusy the entry stays inserted and the cache may transiently
	// exceed its capacity.
	Put(k K, v V) (prev V, replaced bool, err error)

	// PutContext is Put with a context bounding the wait for application
	// locks during eviction. A context carrying a locktable.Owner lets a
	// caller that already holds a victim's lock re-enter it.
	PutContext(ctx context.Context, k K, v V) (prev V, replaced bool, err error)

	// Remove deletes k and returns the prior value without discarding it.
	Remove(k K) (V, bool)

	// RemoveAndDiscard deletes k (even if pinned) and discards it.
	// Unlike eviction it never touches the lock table: the caller must
	// either already hold the application lock or not need it.
	// Returns false if k was not present.
	RemoveAndDiscard(k K) bool

	// Pin marks k as in use so that eviction skips it. Pins nest.
	// Returns false if k is not present.
	Pin(k K) bool

	// Unpin undoes one Pin. Returns false if k is absent or not pinned.
	Unpin(k K) bool

	// Evict trims the cache back to capacity and returns the number of
	// entries evicted. Put calls it implicitly; containers call it after
	// releasing pins, and the sweeper calls it periodically.
	Evict(ctx context.Context) (int, error)

	// GetOrLoad returns the value for k, loading it via Options.Loader on a
	// miss. Concurrent loads for the same key are coalesced. If inserting
	// the loaded value hits ErrCacheBusy, the value is returned together
	// with the error.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Len returns the number of resident entries.
	Len() int

	// Capacity returns the configured entry limit.
	Capacity() int

	// Name returns the configured cache name.
	Name() string

	// Stats returns a point-in-time copy of the cache counters.
	Stats() Stats

	// SetEvictionStrategy swaps the victim selection strategy.
	SetEvictionStrategy(s policy.Strategy[K]) error

	// SetDiscardStrategy swaps the discard callback. Passing a
	// DiscardWithLockStrategy enables the lock-aware eviction protocol.
	SetDiscardStrategy(d DiscardStrategy[K, V]) error

	// Close stops the sweeper and drains every entry through the eviction
	// protocol (pins are ignored). It returns the combined discard and lock
	// errors. Later operations report misses or ErrClosed.
	Close() error
}
