package utils

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetNoDuplicates(t *testing.T) {
	s := NewSet[string]()

	added := s.Add("ATL->LAX")
	if !added {
		t.Error("first Add should return true")
	}

	added = s.Add("ATL->LAX")
	if added {
		t.Error("second Add of same value should return false")
	}

	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
	if !s.Contains("ATL->LAX") {
		t.Error("Contains should report the added value")
	}
}

func TestSetConcurrency(t *testing.T) {
	s := NewSet[string]()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {
			if s.Add("same") {
				atomic.AddInt64(&added, 1)
			}
		}))
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var mu sync.Mutex
	var timestamps []time.Time

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		}))
	}
	pool.Wait()

	// Allow a little scheduler jitter below the nominal interval.
	min := time.Duration(rateLimitMs)*time.Millisecond - 10*time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestWorkerPoolRespectsLimit(t *testing.T) {
	const limit = 3
	pool := NewWorkerPool(limit, 0)

	var running, peak int64
	for i := 0; i < 40; i++ {
		d := time.Duration(rand.Intn(5)+1) * time.Millisecond
		require.NoError(t, pool.Submit(context.Background(), func() {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(d)
			atomic.AddInt64(&running, -1)
		}))
	}
	pool.Wait()

	require.LessOrEqual(t, peak, int64(limit))
	require.Equal(t, int64(0), running)
}

func TestWorkerPoolReleasesSlotOnPanic(t *testing.T) {
	pool := NewWorkerPool(1, 0)

	require.NoError(t, pool.Submit(context.Background(), func() {
		defer func() { _ = recover() }()
		panic("boom")
	}))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second job never ran; slot was not released")
	}
	pool.Wait()
}

func TestWorkerPoolSubmitAfterCancel(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := pool.Submit(ctx, func() { ran = true })
	pool.Wait()

	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ran)
}

func TestWorkerPoolSubmitBlockedUntilCancel(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, func() { t.Error("job must not run") })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	pool.Wait()
}
