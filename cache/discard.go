package cache

import (
	"github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/instancecache/locktable"
)

// DiscardStrategy tears down objects leaving the cache. DiscardObject is
// invoked exactly once per departing entry (eviction, RemoveAndDiscard,
// Close), after the entry is no longer visible in the cache.
//
// Errors and panics are recovered by the cache: they are logged and counted,
// the entry stays gone, and the triggering operation is not failed.
type DiscardStrategy[K comparable, V any] interface {
	DiscardObject(k K, v V) error
}

// DiscardWithLockStrategy is a DiscardStrategy that shares the application's
// per-key lock table with the cache. On the eviction path the cache acquires
// the victim's lock before touching its bucket and holds it across
// DiscardObject, so application code that locks first and then calls into the
// cache can never deadlock against eviction.
//
// The returned table must be stable for the strategy's lifetime.
type DiscardWithLockStrategy[K comparable, V any] interface {
	DiscardStrategy[K, V]
	EvictionLockTable() locktable.Table[K]
}

// DiscardFunc adapts a plain function to DiscardStrategy.
type DiscardFunc[K comparable, V any] func(k K, v V) error

// DiscardObject implements DiscardStrategy.
func (f DiscardFunc[K, V]) DiscardObject(k K, v V) error { return f(k, v) }

// WithLockTable returns a DiscardWithLockStrategy that discards through d and
// synchronizes eviction with t.
func WithLockTable[K comparable, V any](d DiscardStrategy[K, V], t locktable.Table[K]) DiscardWithLockStrategy[K, V] {
	return lockedDiscard[K, V]{DiscardStrategy: d, table: t}
}

type lockedDiscard[K comparable, V any] struct {
	DiscardStrategy[K, V]
	table locktable.Table[K]
}

func (l lockedDiscard[K, V]) EvictionLockTable() locktable.Table[K] { return l.table }

// lockTableOf returns the eviction lock table of d, or nil for a plain
// DiscardStrategy.
func lockTableOf[K comparable, V any](d DiscardStrategy[K, V]) locktable.Table[K] {
	if wl, ok := d.(DiscardWithLockStrategy[K, V]); ok {
		return wl.EvictionLockTable()
	}
	return nil
}

// safeDiscard calls d.DiscardObject, converting a panic into an error.
func safeDiscard[K comparable, V any](d DiscardStrategy[K, V], k K, v V) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.CodeInternal, "discard panicked: %v", r)
		}
	}()
	if derr := d.DiscardObject(k, v); derr != nil {
		return errors.Wrap(derr, errors.CodeInternal, "discard failed")
	}
	return nil
}
