package cache

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/instancecache/internal/singleflight"
	"github.com/IvanBrykalov/instancecache/internal/util"
	"github.com/IvanBrykalov/instancecache/policy"
	"github.com/IvanBrykalov/instancecache/policy/lru"
)

// cache is a bucketed, capacity-bounded instance cache with pluggable
// eviction and discard strategies.
type cache[K comparable, V any] struct {
	name     string
	capacity int
	buckets  []*bucket[K, V]
	hash     func(K) uint64

	// seq orders inserts and accesses; size is the resident entry count.
	seq  atomic.Uint64
	size atomic.Int64

	eviction atomic.Pointer[policy.Strategy[K]]
	discard  atomic.Pointer[DiscardStrategy[K, V]]

	closed  atomic.Bool
	sweeper *sweeper

	opt     Options[K, V]
	log     *slog.Logger
	metrics Metrics
	stats   counters

	// singleflight group for coalescing concurrent loads in GetOrLoad.
	sf singleflight.Group[K, V]
}

// New constructs a cache with the provided Options.
//
// It fails with ErrInvalidConfig when Capacity <= 0 or Discard is nil.
// Defaults:
//   - nil Eviction -> LRU
//   - nil Metrics  -> NoopMetrics
//   - nil Logger   -> silent
//   - Buckets <= 0 -> auto, rounded up to the next power of two
func New[K comparable, V any](opt Options[K, V]) (Cache[K, V], error) {
	if opt.Capacity <= 0 {
		return nil, invalidConfig("capacity must be > 0 (got %d)", opt.Capacity)
	}
	if opt.Discard == nil {
		return nil, invalidConfig("discard strategy is required")
	}
	if opt.LockTimeout < 0 || opt.SweepInterval < 0 {
		return nil, invalidConfig("LockTimeout and SweepInterval must be >= 0")
	}
	if opt.Eviction == nil {
		opt.Eviction = lru.New[K]()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = newNopLogger()
	}
	if opt.Hash == nil {
		opt.Hash = util.Hash[K]
	}

	n := util.ShardCount(opt.Buckets)
	perBucket := (opt.Capacity + n - 1) / n
	bs := make([]*bucket[K, V], n)
	for i := range bs {
		bs[i] = newBucket[K, V](perBucket)
	}

	c := &cache[K, V]{
		name:     opt.Name,
		capacity: opt.Capacity,
		buckets:  bs,
		hash:     opt.Hash,
		opt:      opt,
		log:      opt.Logger.With(slog.String("cache", opt.Name)),
		metrics:  opt.Metrics,
	}
	c.eviction.Store(&opt.Eviction)
	c.discard.Store(&opt.Discard)

	if opt.SweepInterval > 0 {
		c.sweeper = startSweeper(c, opt.SweepInterval)
	}
	return c, nil
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	v, ok := c.bucketFor(k).get(k, c.nextSeq)
	if ok {
		c.stats.hits.Add(1)
		c.metrics.Hit()
	} else {
		c.stats.misses.Add(1)
		c.metrics.Miss()
	}
	return v, ok
}

func (c *cache[K, V]) Put(k K, v V) (V, bool, error) {
	return c.PutContext(context.Background(), k, v)
}

func (c *cache[K, V]) PutContext(ctx context.Context, k K, v V) (V, bool, error) {
	if c.closed.Load() {
		var zero V
		return zero, false, ErrClosed
	}
	prev, replaced := c.bucketFor(k).put(k, v, c.nextSeq())
	if !replaced {
		c.size.Add(1)
	}
	if c.excess() > 0 {
		if _, err := c.evictOverflow(ctx); err != nil {
			return prev, replaced, err
		}
	}
	c.metrics.Size(c.Len())
	return prev, replaced, nil
}

func (c *cache[K, V]) Remove(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	e, ok := c.bucketFor(k).remove(k)
	if !ok {
		var zero V
		return zero, false
	}
	c.size.Add(-1)
	c.metrics.Size(c.Len())
	return e.val, true
}

func (c *cache[K, V]) RemoveAndDiscard(k K) bool {
	if c.closed.Load() {
		return false
	}
	e, ok := c.bucketFor(k).remove(k)
	if !ok {
		return false
	}
	c.size.Add(-1)
	c.discardEntry(c.discardStrategy(), e, EvictExplicit)
	c.metrics.Size(c.Len())
	return true
}

func (c *cache[K, V]) Pin(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.bucketFor(k).pin(k)
}

func (c *cache[K, V]) Unpin(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.bucketFor(k).unpin(k)
}

func (c *cache[K, V]) Evict(ctx context.Context) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return c.evictOverflow(ctx)
}

func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	// singleflight: exactly one real load for the key
	return c.sf.Do(ctx, k, func() (V, error) {
		// double-check after flight join
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := c.opt.Loader(ctx, k)
		if err != nil {
			return v, err
		}
		_, _, err = c.PutContext(ctx, k, v)
		return v, err
	})
}

func (c *cache[K, V]) Len() int {
	// size can dip below zero for an instant when a Remove overtakes the
	// counter bump of the Put that inserted the entry.
	if n := c.size.Load(); n > 0 {
		return int(n)
	}
	return 0
}

func (c *cache[K, V]) Capacity() int { return c.capacity }

func (c *cache[K, V]) Name() string { return c.name }

func (c *cache[K, V]) Stats() Stats {
	s := Stats{Name: c.name, Entries: c.Len(), Capacity: c.capacity}
	c.stats.snapshot(&s)
	return s
}

func (c *cache[K, V]) SetEvictionStrategy(s policy.Strategy[K]) error {
	if s == nil {
		return invalidConfig("eviction strategy must not be nil")
	}
	c.eviction.Store(&s)
	return nil
}

func (c *cache[K, V]) SetDiscardStrategy(d DiscardStrategy[K, V]) error {
	if d == nil {
		return invalidConfig("discard strategy must not be nil")
	}
	c.discard.Store(&d)
	return nil
}

// Close drains the cache. Puts racing with Close may be rejected with
// ErrClosed or drained; callers should stop issuing Puts first.
func (c *cache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.sweeper != nil {
		c.sweeper.stop()
	}

	d := c.discardStrategy()
	locks := lockTableOf(d)

	var (
		mu      sync.Mutex
		errs    error
		drained atomic.Int64
	)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, b := range c.buckets {
		g.Go(func() error {
			for _, k := range b.keys(nil) {
				res, err := c.evictEntry(context.Background(), k, d, locks, EvictShutdown)
				if res.removed {
					drained.Add(1)
				}
				if err == nil {
					err = res.discardErr
				}
				if err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	c.metrics.Size(c.Len())
	c.log.Info("cache closed",
		slog.Int64("drained", drained.Load()),
		slog.Int("remaining", c.Len()),
		slog.Int("errors", len(multierr.Errors(errs))))
	return errs
}

// ---- helpers ----

// bucketFor picks a bucket by hashing the key and masking with len-1.
// len(c.buckets) is guaranteed to be a power of two.
func (c *cache[K, V]) bucketFor(k K) *bucket[K, V] {
	return c.buckets[util.ShardIndex(c.hash(k), len(c.buckets))]
}

func (c *cache[K, V]) nextSeq() uint64 { return c.seq.Add(1) }

func (c *cache[K, V]) excess() int { return c.Len() - c.capacity }

func (c *cache[K, V]) strategy() policy.Strategy[K] { return *c.eviction.Load() }

func (c *cache[K, V]) discardStrategy() DiscardStrategy[K, V] { return *c.discard.Load() }
