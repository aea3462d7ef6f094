package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDo_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := g.Do(context.Background(), "k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	require.Eventually(t, func() bool { return g.InFlight("k") }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond) // let followers join
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.Equal(t, 42, v)
	}
	require.False(t, g.InFlight("k"))
}

func TestDo_FollowerCancellation(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	release := make(chan struct{})
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = g.Do(context.Background(), "k", func() (int, error) {
			<-release
			return 1, nil
		})
	}()
	require.Eventually(t, func() bool { return g.InFlight("k") }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Do(ctx, "k", func() (int, error) { return 2, nil })
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	<-leaderDone
}

func TestDo_PanicReachesFollowers(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	release := make(chan struct{})
	leaderPanicked := make(chan any, 1)
	go func() {
		defer func() { leaderPanicked <- recover() }()
		_, _ = g.Do(context.Background(), "k", func() (int, error) {
			<-release
			panic("boom")
		})
	}()
	require.Eventually(t, func() bool { return g.InFlight("k") }, time.Second, time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Do(context.Background(), "k", func() (int, error) { return 0, nil })
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	require.Equal(t, "boom", <-leaderPanicked)
	// The follower either joined the failed flight or started a fresh one.
	if err := <-errCh; err != nil {
		require.Contains(t, err.Error(), "panicked")
	}
}

func TestDo_ErrorIsShared(t *testing.T) {
	t.Parallel()

	var g Group[int, string]
	sentinel := errors.New("load failed")
	_, err := g.Do(context.Background(), 1, func() (string, error) { return "", sentinel })
	require.ErrorIs(t, err, sentinel)
	require.False(t, g.InFlight(1))
}
