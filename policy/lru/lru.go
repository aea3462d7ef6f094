// Package lru implements the least-recently-used victim selection strategy.
package lru

import (
	"container/heap"
	"sort"

	"github.com/IvanBrykalov/instancecache/policy"
)

type lru[K comparable] struct{}

// New returns an LRU strategy: the n unpinned candidates with the oldest
// LastAccess, ties broken by insertion order.
func New[K comparable]() policy.Strategy[K] { return lru[K]{} }

// SelectVictims keeps a bounded max-heap of the n oldest candidates, so a
// pass costs O(len(snapshot) * log n) rather than a full sort.
func (lru[K]) SelectVictims(snapshot []policy.Candidate[K], n int) []K {
	if n <= 0 || len(snapshot) == 0 {
		return nil
	}
	h := &newest[K]{}
	for _, c := range snapshot {
		if c.Pinned {
			continue
		}
		if h.Len() < n {
			heap.Push(h, c)
			continue
		}
		// Replace the youngest of the kept candidates if c is older.
		if policy.Older(c, (*h)[0]) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}

	kept := []policy.Candidate[K](*h)
	sort.Slice(kept, func(i, j int) bool { return policy.Older(kept[i], kept[j]) })
	out := make([]K, len(kept))
	for i, c := range kept {
		out[i] = c.Key
	}
	return out
}

// newest is a max-heap on LRU age: the root is the most recently used
// candidate among those kept.
type newest[K comparable] []policy.Candidate[K]

func (h newest[K]) Len() int           { return len(h) }
func (h newest[K]) Less(i, j int) bool { return policy.Older(h[j], h[i]) }
func (h newest[K]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *newest[K]) Push(x any)        { *h = append(*h, x.(policy.Candidate[K])) }
func (h *newest[K]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
