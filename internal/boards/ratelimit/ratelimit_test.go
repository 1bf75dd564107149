package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllow(t *testing.T) {
	l := New(3, time.Minute)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiterWindowExpiry(t *testing.T) {
	l := New(2, time.Minute)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow())
	clock = clock.Add(30 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	// The first grant leaves the window after a full minute.
	clock = clock.Add(30*time.Second + time.Nanosecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiterAcquireBlocksUntilSlotFrees(t *testing.T) {
	l := New(1, time.Minute)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	var slept []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Acquire(context.Background()))

	// The second acquire had to wait out the remainder of the window.
	require.Len(t, slept, 1)
	assert.Equal(t, time.Minute, slept[0])
}

func TestLimiterAcquireRespectsContext(t *testing.T) {
	l := New(1, time.Hour)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
