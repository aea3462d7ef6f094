package lru

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/IvanBrykalov/instancecache/policy"
)

func cand(k string, inserted, access uint64) policy.Candidate[string] {
	return policy.Candidate[string]{Key: k, Inserted: inserted, LastAccess: access}
}

// The least recently accessed candidates come first.
func TestLRU_SelectsOldestAccess(t *testing.T) {
	t.Parallel()

	snap := []policy.Candidate[string]{
		cand("a", 1, 5),
		cand("b", 2, 2),
		cand("c", 3, 9),
		cand("d", 4, 3),
	}
	got := New[string]().SelectVictims(snap, 2)
	if want := []string{"b", "d"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

// Equal access sequences are broken by insertion order, oldest first.
func TestLRU_TieBreakByInsertion(t *testing.T) {
	t.Parallel()

	snap := []policy.Candidate[string]{
		cand("c", 3, 7),
		cand("a", 1, 7),
		cand("b", 2, 7),
	}
	got := New[string]().SelectVictims(snap, 3)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

// A pinned LRU entry is skipped in favour of the next-oldest evictable one.
func TestLRU_SkipsPinned(t *testing.T) {
	t.Parallel()

	a := cand("a", 1, 1)
	a.Pinned = true
	snap := []policy.Candidate[string]{a, cand("b", 2, 2), cand("c", 3, 3)}

	got := New[string]().SelectVictims(snap, 1)
	if want := []string{"b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

// Fewer evictable candidates than requested is not an error.
func TestLRU_ReturnsWhatItCan(t *testing.T) {
	t.Parallel()

	a := cand("a", 1, 1)
	a.Pinned = true
	snap := []policy.Candidate[string]{a, cand("b", 2, 2)}

	got := New[string]().SelectVictims(snap, 5)
	if want := []string{"b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	if got := New[string]().SelectVictims(nil, 3); len(got) != 0 {
		t.Fatalf("empty snapshot must yield no victims, got %v", got)
	}
	if got := New[string]().SelectVictims(snap, 0); len(got) != 0 {
		t.Fatalf("n=0 must yield no victims, got %v", got)
	}
}

// The heap selection must agree with a full sort on random snapshots.
func TestLRU_MatchesFullSort(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		size := 1 + r.Intn(200)
		snap := make([]policy.Candidate[int], size)
		for i := range snap {
			snap[i] = policy.Candidate[int]{
				Key:        i,
				Inserted:   uint64(i),
				LastAccess: uint64(r.Intn(50)),
				Pinned:     r.Intn(5) == 0,
			}
		}
		n := r.Intn(size + 1)

		var eligible []policy.Candidate[int]
		for _, c := range snap {
			if !c.Pinned {
				eligible = append(eligible, c)
			}
		}
		sort.Slice(eligible, func(i, j int) bool { return policy.Older(eligible[i], eligible[j]) })
		if len(eligible) > n {
			eligible = eligible[:n]
		}
		want := make([]int, len(eligible))
		for i, c := range eligible {
			want[i] = c.Key
		}

		got := New[int]().SelectVictims(snap, n)
		if len(got) == 0 && len(want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round %d: want %v, got %v", round, want, got)
		}
	}
}
