package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetOrFetch(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	// Second access within the TTL does not refetch.
	v, err = c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// One nanosecond before the boundary the entry is still fresh.
	clock = clock.Add(time.Minute - time.Nanosecond)
	v, err = c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Exactly at fetchedAt+ttl the entry is stale.
	clock = clock.Add(time.Nanosecond)
	v, err = c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestCacheFailedFetchCachesNothing(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)

	boom := errors.New("boom")
	calls := 0
	_, err := c.GetOrFetch(ctx, "k", func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	// The failure was not cached: the next access fetches again.
	v, err := c.GetOrFetch(ctx, "k", func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestCacheCoalescesConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 99, nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFetch(ctx, "k", fetch)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let the goroutines pile onto the flight group before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 99, v)
	}
}

func TestCachePutAndInvalidate(t *testing.T) {
	c := New[string, string](time.Minute)

	c.Put("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.Invalidate("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Put("a", "1")
	c.Put("b", "2")
	c.Clear()
	_, ok = c.Get("a")
	assert.False(t, ok)
}
