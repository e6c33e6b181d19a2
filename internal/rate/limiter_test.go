package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozen returns a limiter whose clock only moves when the test advances it.
func frozen(cfg Config) (*Limiter, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	lim := New(cfg)
	lim.last = now
	lim.now = func() time.Time { return now }
	return lim, &now
}

func TestLimiter_AllowUpToBurst(t *testing.T) {
	lim, _ := frozen(Config{RequestsPerSecond: 10, Burst: 5})

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestLimiter_Refill(t *testing.T) {
	lim, now := frozen(Config{RequestsPerSecond: 10, Burst: 2})
	for lim.Allow() {
	}

	*now = now.Add(100 * time.Millisecond)
	assert.True(t, lim.Allow(), "one token after 1/rate seconds")
	assert.False(t, lim.Allow())
}

func TestLimiter_BurstCap(t *testing.T) {
	lim, now := frozen(Config{RequestsPerSecond: 1000, Burst: 3})
	*now = now.Add(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	lim := New(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, lim.Allow())
	}
}

func TestLimiter_WaitSucceeds(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 100, Burst: 1})
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, lim.Wait(ctx))
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 1, Burst: 1})
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, lim.Wait(ctx), context.DeadlineExceeded)
}

func TestManager_SameKeySameLimiter(t *testing.T) {
	m := NewManager(Config{RequestsPerSecond: 5, Burst: 5})

	var wg sync.WaitGroup
	got := make([]*Limiter, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = m.GetLimiter("coincap")
		}(i)
	}
	wg.Wait()

	for _, l := range got {
		assert.Same(t, got[0], l)
	}
	assert.NotSame(t, got[0], m.GetLimiter("other"))
}
