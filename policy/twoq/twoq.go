// Package twoq implements a scan-resistant two-queue (2Q) victim selection
// strategy.
package twoq

import (
	"container/list"
	"sort"
	"sync"

	"github.com/IvanBrykalov/instancecache/policy"
)

// twoQ splits resident candidates into two classes:
//
//   - A1in (probation): entries never re-accessed since insertion (Hits == 0).
//     They are evicted first, oldest first, so one-shot scans cannot flush
//     the working set.
//   - Am (protected): everything else, evicted in LRU order once A1in is empty.
//
// Ghost A1out: keys of probation entries recently chosen as victims. A key that
// comes back while still remembered in A1out skips probation and is treated as
// protected (a second chance), mirroring classic 2Q re-admission.
//
// Concurrency: SelectVictims may run from several evicting goroutines; the ghost
// queue is guarded by mu.
type twoQ[K comparable] struct {
	mu       sync.Mutex
	capGhost int

	// A1out: MRU at Front() -> LRU at Back(); element.Value is K.
	ghostList *list.List
	ghostIdx  map[K]*list.Element
}

// New constructs a 2Q strategy remembering up to capGhost evicted probation
// keys. A reasonable choice is 50-100% of the cache capacity.
func New[K comparable](capGhost int) policy.Strategy[K] {
	if capGhost < 1 {
		capGhost = 1
	}
	return &twoQ[K]{
		capGhost:  capGhost,
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
	}
}

// SelectVictims drains A1in before touching Am.
func (q *twoQ[K]) SelectVictims(snapshot []policy.Candidate[K], n int) []K {
	if n <= 0 || len(snapshot) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var in, am []policy.Candidate[K]
	for _, c := range snapshot {
		if c.Pinned {
			continue
		}
		if c.Hits == 0 && !q.isGhost(c.Key) {
			in = append(in, c)
		} else {
			am = append(am, c)
		}
	}
	sort.Slice(in, func(i, j int) bool { return policy.Older(in[i], in[j]) })

	out := make([]K, 0, n)
	for _, c := range in {
		if len(out) == n {
			return out
		}
		out = append(out, c.Key)
		q.remember(c.Key)
	}

	sort.Slice(am, func(i, j int) bool { return policy.Older(am[i], am[j]) })
	for _, c := range am {
		if len(out) == n {
			break
		}
		out = append(out, c.Key)
	}
	return out
}

func (q *twoQ[K]) isGhost(k K) bool {
	_, ok := q.ghostIdx[k]
	return ok
}

// remember inserts/moves k to the MRU end of A1out, dropping LRU ghosts
// beyond capGhost.
func (q *twoQ[K]) remember(k K) {
	if old := q.ghostIdx[k]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(K))
		q.ghostList.Remove(tail)
	}
}
