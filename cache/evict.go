package cache

import (
	"context"
	"log/slog"

	"github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/instancecache/locktable"
	"github.com/IvanBrykalov/instancecache/policy"
)

// Lock order
//
// Every path that needs both an application lock (from the discard strategy's
// lock table) and a bucket lock acquires the application lock first. Buckets
// are innermost: no bucket lock is ever held while waiting on anything else.
// Application code that locks a key and then calls into the cache therefore
// cannot deadlock against a concurrent eviction of that key.
//
// There is deliberately no cache-wide eviction mutex: an evictor holding it
// while waiting for an application lock would invert the order against an
// application goroutine that holds that lock and calls Put. Concurrent
// evictors instead re-check the overflow before each victim and re-validate
// every victim under its bucket lock, so an entry is discarded at most once.

type evictResult struct {
	removed    bool
	discardErr error
}

// evictOverflow runs one eviction pass for however many entries the cache is
// over capacity. Pinned or vanished victims are skipped; only an application
// lock timeout aborts the pass (ErrCacheBusy).
func (c *cache[K, V]) evictOverflow(ctx context.Context) (int, error) {
	need := c.excess()
	if need <= 0 {
		return 0, nil
	}

	victims := c.selectVictims(c.snapshot(), need)
	if len(victims) == 0 {
		c.log.Debug("over capacity but nothing evictable",
			slog.Int("size", c.Len()), slog.Int("capacity", c.capacity))
		return 0, nil
	}

	d := c.discardStrategy()
	locks := lockTableOf(d) // fetched once per pass

	evicted := 0
	for _, k := range victims {
		if c.excess() <= 0 {
			break
		}
		res, err := c.evictEntry(ctx, k, d, locks, EvictCapacity)
		if err != nil {
			c.metrics.Size(c.Len())
			return evicted, err
		}
		if !res.removed {
			c.stats.skipped.Add(1)
			c.log.Debug("victim skipped", slog.Any("key", k))
			continue
		}
		evicted++
	}
	c.metrics.Size(c.Len())
	return evicted, nil
}

// evictEntry removes and discards one victim following the lock protocol:
//
//  1. with a lock table, lock the victim's application lock;
//  2. under the bucket lock, re-validate and remove;
//  3. discard while still holding the application lock;
//  4. unlock and release the handle.
//
// Shutdown ignores pins. The returned error is non-nil only for lock
// acquisition failures (ErrCacheBusy); discard failures are reported in the
// result and are already logged and counted.
func (c *cache[K, V]) evictEntry(ctx context.Context, k K, d DiscardStrategy[K, V], locks locktable.Table[K], reason EvictReason) (evictResult, error) {
	if locks != nil {
		h := locks.GetLock(k)
		defer h.Release()

		lctx, cancel := c.lockContext(ctx)
		err := h.Lock(lctx)
		cancel()
		if err != nil {
			c.log.Debug("eviction lock busy", slog.Any("key", k), slog.Any("error", err))
			return evictResult{}, errors.Wrapf(ErrCacheBusy, errors.CodeTimeout,
				"cache %q: locking %v for %s eviction: %v", c.name, k, reason, err)
		}
		defer h.Unlock()
	}

	b := c.bucketFor(k)
	var (
		e  *entry[K, V]
		ok bool
	)
	if reason == EvictShutdown {
		e, ok = b.remove(k)
	} else {
		e, ok = b.removeEvictable(k)
	}
	if !ok {
		return evictResult{}, nil
	}
	c.size.Add(-1)
	if reason == EvictCapacity {
		c.stats.evictions.Add(1)
	}
	return evictResult{removed: true, discardErr: c.discardEntry(d, e, reason)}, nil
}

// discardEntry hands a removed entry to the discard strategy. Failures are
// contained: logged, counted, and never re-insert the entry.
func (c *cache[K, V]) discardEntry(d DiscardStrategy[K, V], e *entry[K, V], reason EvictReason) error {
	c.stats.discards.Add(1)
	c.metrics.Evict(reason)

	err := safeDiscard(d, e.key, e.val)
	if err != nil {
		c.stats.discardFailures.Add(1)
		c.metrics.DiscardFailure()
		c.log.Warn("discard failed",
			slog.Any("key", e.key),
			slog.String("reason", reason.String()),
			slog.Any("error", err))
	}
	return err
}

// selectVictims asks the strategy for n victims, containing strategy panics.
func (c *cache[K, V]) selectVictims(snap []policy.Candidate[K], n int) (victims []K) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("eviction strategy panicked", slog.Any("panic", r))
			victims = nil
		}
	}()
	return c.strategy().SelectVictims(snap, n)
}

// snapshot collects candidates bucket by bucket (consistent per bucket).
func (c *cache[K, V]) snapshot() []policy.Candidate[K] {
	snap := make([]policy.Candidate[K], 0, c.Len())
	for _, b := range c.buckets {
		snap = b.snapshot(snap)
	}
	return snap
}

// lockContext applies Options.LockTimeout to ctx.
func (c *cache[K, V]) lockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opt.LockTimeout > 0 {
		return context.WithTimeout(ctx, c.opt.LockTimeout)
	}
	return ctx, func() {}
}
