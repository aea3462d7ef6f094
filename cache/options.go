package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/instancecache/policy"
)

// EvictReason explains why an entry was discarded.
type EvictReason int

const (
	// EvictCapacity: chosen by the eviction strategy to get back under capacity.
	EvictCapacity EvictReason = iota
	// EvictExplicit: removed through RemoveAndDiscard.
	EvictExplicit
	// EvictShutdown: drained by Close.
	EvictShutdown
)

func (r EvictReason) String() string {
	switch r {
	case EvictExplicit:
		return "explicit"
	case EvictShutdown:
		return "shutdown"
	default:
		return "capacity"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	DiscardFailure()
	Size(entries int)
}

// Options configures a cache. Zero values are safe except where noted;
// defaults are applied in New():
//   - nil Eviction  => LRU
//   - Buckets <= 0  => auto (rounded up to a power of two)
//   - nil Metrics   => NoopMetrics
//   - nil Logger    => discard all log output
type Options[K comparable, V any] struct {
	// Name identifies the cache in logs and stats (e.g. "session-beans").
	Name string

	// Capacity is the entry count limit. Required, must be > 0.
	Capacity int

	// Buckets is the number of lock-partitioned buckets. If 0, an automatic
	// value is chosen (≈ 2*GOMAXPROCS) and rounded to the next power of two.
	Buckets int

	// Eviction selects victims when the cache is over capacity; nil => LRU.
	Eviction policy.Strategy[K]

	// Discard tears down entries leaving the cache. Required.
	// Supply a DiscardWithLockStrategy to synchronize eviction with the
	// application's own per-key locks.
	Discard DiscardStrategy[K, V]

	// LockTimeout bounds each application-lock wait on the eviction path.
	// Exceeding it surfaces ErrCacheBusy. 0 waits as long as the caller's
	// context allows.
	LockTimeout time.Duration

	// SweepInterval starts a background sweeper that trims the cache back to
	// capacity at this period (catches entries that were pinned when Put
	// last ran). 0 disables it.
	SweepInterval time.Duration

	// Loader creates a value on cache miss. Used by GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// Hash maps keys to buckets. Nil => xxhash for common key types.
	Hash func(K) uint64

	// Observability
	Metrics Metrics
	Logger  *slog.Logger
}
