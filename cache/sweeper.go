package cache

import (
	"context"
	"log/slog"
	"time"
)

// sweeper periodically trims the cache back to capacity off the Put path.
// Put-triggered eviction skips pinned victims; the sweeper picks up the slack
// once those pins are released.
type sweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startSweeper[K comparable, V any](c *cache[K, V], every time.Duration) *sweeper {
	// Cancelling ctx also abandons a sweep blocked on an application lock,
	// so Close never waits on one for the sweeper's sake.
	ctx, cancel := context.WithCancel(context.Background())
	s := &sweeper{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.sweep(ctx)
			}
		}
	}()
	return s
}

// stop ends the sweeper and waits for an in-flight sweep to finish.
func (s *sweeper) stop() {
	s.cancel()
	<-s.done
}

func (c *cache[K, V]) sweep(ctx context.Context) {
	if c.excess() <= 0 {
		return
	}
	n, err := c.evictOverflow(ctx)
	if err != nil {
		c.log.Debug("sweep interrupted", slog.Int("evicted", n), slog.Any("error", err))
		return
	}
	if n > 0 {
		c.log.Debug("sweep evicted entries", slog.Int("evicted", n), slog.Int("size", c.Len()))
	}
}
