package cache

import "github.com/IvanBrykalov/instancecache/internal/util"

// Stats is a point-in-time copy of a cache's counters.
type Stats struct {
	Name     string `json:"name"`
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	// Hits is the number of Get calls that found their key
	Hits uint64 `json:"hits"`
	// Misses is the number of Get calls that did not
	Misses uint64 `json:"misses"`
	// Evictions counts entries evicted to get back under capacity
	Evictions uint64 `json:"evictions"`
	// Discards counts DiscardObject invocations for any reason
	Discards uint64 `json:"discards"`
	// DiscardFailures counts DiscardObject calls that returned an error or panicked
	DiscardFailures uint64 `json:"discard_failures"`
	// SkippedVictims counts selected victims that were pinned or gone by the time
	// the cache tried to remove them
	SkippedVictims uint64 `json:"skipped_victims"`
}

// HitRatio returns hits/(hits+misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters holds the hot atomic counters, one cache line each.
type counters struct {
	hits            util.PaddedCounter
	misses          util.PaddedCounter
	evictions       util.PaddedCounter
	discards        util.PaddedCounter
	discardFailures util.PaddedCounter
	skipped         util.PaddedCounter
}

func (c *counters) snapshot(s *Stats) {
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.Evictions = c.evictions.Load()
	s.Discards = c.discards.Load()
	s.DiscardFailures = c.discardFailures.Load()
	s.SkippedVictims = c.skipped.Load()
}
