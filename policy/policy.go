// Package policy defines the victim-selection contract used by the cache
// when it runs over capacity.
package policy

// Candidate is a read-only view of one resident entry, captured under its
// bucket lock. The snapshot handed to a Strategy is consistent per bucket,
// not globally atomic.
type Candidate[K comparable] struct {
	Key K

	// Inserted is the cache sequence number at which the entry was created.
	// It orders candidates by insertion and breaks LastAccess ties.
	Inserted uint64

	// LastAccess is the sequence number of the most recent Get/Put.
	LastAccess uint64

	// Hits counts re-accesses after insertion (Get hits and same-key Puts).
	Hits uint32

	// Pinned is true while the entry is in active use. Pinned candidates
	// must never be selected.
	Pinned bool
}

// Older reports whether a should be evicted before b under LRU ordering:
// older LastAccess first, ties broken by insertion order (oldest first).
func Older[K comparable](a, b Candidate[K]) bool {
	if a.LastAccess != b.LastAccess {
		return a.LastAccess < b.LastAccess
	}
	return a.Inserted < b.Inserted
}

// Strategy selects eviction victims.
//
// Contract:
//   - never return a key whose candidate is Pinned;
//   - return at most n keys, in the order they should be evicted;
//   - return fewer (possibly zero) when not enough evictable candidates exist;
//     the cache does not treat that as an error.
//
// SelectVictims may be called concurrently by several goroutines and must not
// retain or mutate the snapshot slice.
type Strategy[K comparable] interface {
	SelectVictims(snapshot []Candidate[K], n int) []K
}

// Func adapts a plain function to Strategy.
type Func[K comparable] func(snapshot []Candidate[K], n int) []K

// SelectVictims implements Strategy.
func (f Func[K]) SelectVictims(snapshot []Candidate[K], n int) []K { return f(snapshot, n) }
