package singleflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGroup_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var calls atomic.Int64
	release := make(chan struct{})

	var eg errgroup.Group
	const n = 16
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			started <- struct{}{}
			v, err, _ := g.Do("k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			if err != nil {
				return err
			}
			if v != 42 {
				return errors.New("unexpected value")
			}
			return nil
		})
	}
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond) // let followers join the flight
	close(release)

	require.NoError(t, eg.Wait())
	require.LessOrEqual(t, calls.Load(), int64(n))
	require.GreaterOrEqual(t, calls.Load(), int64(1))
}

func TestGroup_PropagatesError(t *testing.T) {
	t.Parallel()

	var g Group[string, string]
	boom := errors.New("boom")
	_, err, shared := g.Do("k", func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	require.False(t, shared)

	// The flight is over, so the next call runs fn again.
	v, err, _ := g.Do("k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestGroup_PanicReleasesFollowers(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = recover() }()
		_, _, _ = g.Do("k", func() (int, error) {
			close(entered)
			<-release
			panic("leader failed")
		})
	}()
	<-entered

	followerErr := make(chan error, 1)
	go func() {
		_, err, _ := g.Do("k", func() (int, error) { return 1, nil })
		followerErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	select {
	case err := <-followerErr:
		// The follower either joined the failed flight or started a new one.
		if err != nil {
			require.ErrorIs(t, err, ErrLeaderPanicked)
		}
	case <-time.After(time.Second):
		t.Fatal("follower was stranded by a panicking leader")
	}
}
