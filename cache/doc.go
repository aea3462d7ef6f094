// Package cache provides a bounded, concurrent cache of expensive, reusable
// object instances (pooled component instances, connections, sessions) that
// tears down every object leaving the cache exactly once, without deadlocking
// against locks the caller already holds.
//
// Design
//
//   - Concurrency: the key space is split into power-of-two buckets, each
//     protected by an RWMutex. Get only takes a bucket read lock; recency is
//     tracked with atomics on the entry.
//
//   - Capacity: a global entry limit. A Put that pushes the cache over it
//     runs an eviction pass before returning. Victims are chosen by a
//     pluggable policy.Strategy (LRU by default, 2Q available) from a
//     per-bucket-consistent snapshot. Pinned entries are never chosen.
//
//   - Discard: every entry leaving through eviction, RemoveAndDiscard or
//     Close is passed to DiscardStrategy.DiscardObject exactly once, after it
//     is no longer visible. Errors and panics from the callback are logged,
//     counted and contained. Remove and same-key replacement do not discard.
//
//   - Lock order: with a DiscardWithLockStrategy the eviction path locks the
//     victim's application lock (from a locktable.Table shared with the
//     container) before its bucket lock and holds it across DiscardObject.
//     As long as application code also takes its own lock before calling
//     into the cache, no interleaving can deadlock. RemoveAndDiscard skips the
//     lock table by design. Options.LockTimeout turns a stuck wait into
//     ErrCacheBusy.
//
//   - Sweeper: Options.SweepInterval trims the cache in the background,
//     evicting entries that were pinned when the triggering Put ran.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/DiscardFailure/Size
//     signals (see metrics/prom). Stats returns the same counters in-process.
//
// Basic usage
//
//	c, err := cache.New[string, *Conn](cache.Options[string, *Conn]{
//	    Name:     "conn-pool",
//	    Capacity: 128,
//	    Discard: cache.DiscardFunc[string, *Conn](func(_ string, c *Conn) error {
//	        return c.Close()
//	    }),
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	c.Put("db-1", conn)
//
// Sharing application locks with eviction
//
//	locks := locktable.New[string](locktable.Options[string]{})
//	c, _ := cache.New[string, *Bean](cache.Options[string, *Bean]{
//	    Capacity: 1000,
//	    Discard:  cache.WithLockTable[string, *Bean](passivator, locks),
//	})
//
//	owner := locktable.NewOwner()
//	ctx := locktable.WithOwner(ctx, owner)
//	h := locks.GetLock(id)
//	defer h.Release()
//	_ = h.Lock(ctx) // application lock first ...
//	c.PutContext(ctx, id, bean) // ... then the cache; re-enters h if id is a victim
//	h.Unlock()
package cache
