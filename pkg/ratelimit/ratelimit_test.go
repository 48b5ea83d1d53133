package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() (*Limiter, *MemoryStore, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore()

	return NewLimiter(store, WithClock(clock)), store, clock
}

func perSecond(key string, capacity float64) Rule {
	return Rule{Key: key, Capacity: capacity, Rate: 1, Period: time.Second}
}

func TestRule_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule Rule
	}{
		{"empty key", Rule{Capacity: 1, Rate: 1, Period: time.Second}},
		{"zero capacity", Rule{Key: "k", Rate: 1, Period: time.Second}},
		{"zero rate", Rule{Key: "k", Capacity: 1, Period: time.Second}},
		{"zero period", Rule{Key: "k", Capacity: 1, Rate: 1}},
		{"cost above capacity", Rule{Key: "k", Capacity: 1, Rate: 1, Period: time.Second, Cost: 2}},
	}

	limiter, _, _ := newTestLimiter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := limiter.Limit(context.Background(), tt.rule)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}

func TestLimiter_TokenBucket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, store, clock := newTestLimiter()
	rule := perSecond("conn-1", 3)
	start := clock.Now()

	for i := range 3 {
		result, err := limiter.Limit(ctx, rule)
		require.NoError(t, err)
		assert.True(t, result.OK, "call %d", i)
	}

	result, err := limiter.Limit(ctx, rule)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, start.Add(time.Second), result.RetryAt)

	state, found := store.State("conn-1")
	require.True(t, found)
	assert.InDelta(t, 0, state.Tokens, 1e-9)

	clock.Advance(500 * time.Millisecond)

	result, err = limiter.Limit(ctx, rule)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, start.Add(time.Second), result.RetryAt)

	state, _ = store.State("conn-1")
	assert.InDelta(t, 0.5, state.Tokens, 1e-9, "rejections never deduct")

	clock.Advance(500 * time.Millisecond)

	result, err = limiter.Limit(ctx, rule)
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestLimiter_NeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, clock := newTestLimiter()
	rule := perSecond("idle", 5)

	clock.Advance(24 * time.Hour)

	admitted := 0

	for range 20 {
		result, err := limiter.Limit(ctx, rule)
		require.NoError(t, err)

		if result.OK {
			admitted++
		}
	}

	assert.Equal(t, 5, admitted)
}

func TestLimiter_Cost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, clock := newTestLimiter()
	rule := Rule{Key: "cost", Capacity: 10, Rate: 2, Period: time.Second, Cost: 4}

	for range 2 {
		result, err := limiter.Limit(ctx, rule)
		require.NoError(t, err)
		require.True(t, result.OK)
	}

	result, err := limiter.Limit(ctx, rule)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.InDelta(t, 2, result.Remaining, 1e-9)
	assert.Equal(t, clock.Now().Add(time.Second), result.RetryAt)
}

func TestLimiter_ConcurrentCallersShareTheLastToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, _ := newTestLimiter()
	rule := perSecond("shared", 5)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := limiter.Limit(ctx, rule)
			if err == nil && result.OK {
				admitted.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(5), admitted.Load())
}

func TestLimiter_LimitAllShortCircuits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, store, _ := newTestLimiter()
	wide := perSecond("wide", 10)
	narrow := perSecond("narrow", 1)
	never := perSecond("never", 10)

	result, err := limiter.LimitAll(ctx, wide, narrow, never)
	require.NoError(t, err)
	assert.True(t, result.OK)

	result, err = limiter.LimitAll(ctx, wide, narrow, never)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "narrow", result.Key)

	state, _ := store.State("wide")
	assert.InDelta(t, 9, state.Tokens, 1e-9, "rules taken before the rejection are refunded")

	state, _ = store.State("never")
	assert.InDelta(t, 9, state.Tokens, 1e-9, "rules after the rejection are not evaluated")
}

func TestLimiter_LimitAllRejectionCostsNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, store, clock := newTestLimiter()
	burst := Rule{Key: "conn:burst", Capacity: 5, Rate: 5, Period: time.Second}
	sustained := Rule{Key: "conn:sustained", Capacity: 1, Rate: 1, Period: time.Hour}

	result, err := limiter.LimitAll(ctx, burst, sustained)
	require.NoError(t, err)
	require.True(t, result.OK)

	for range 4 {
		result, err = limiter.LimitAll(ctx, burst, sustained)
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, "conn:sustained", result.Key)
		assert.Equal(t, clock.Now().Add(time.Hour), result.RetryAt)
	}

	state, _ := store.State("conn:burst")
	assert.InDelta(t, 4, state.Tokens, 1e-9)

	_, err = limiter.LimitAll(ctx, burst, Rule{Key: "broken"})
	require.ErrorIs(t, err, ErrInvalidRule)

	state, _ = store.State("conn:burst")
	assert.InDelta(t, 4, state.Tokens, 1e-9, "invalid rules are rejected before any take")
}

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	limiter, _, clock := newTestLimiter()
	rule := perSecond("wait", 1)

	require.NoError(t, limiter.Wait(ctx, rule))

	done := make(chan error, 1)

	go func() {
		done <- limiter.Wait(ctx, rule)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("wait did not return after the bucket refilled")
	}
}

func TestLimiter_WaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	limiter, _, _ := newTestLimiter()
	rule := perSecond("cancel", 1)

	require.NoError(t, limiter.Wait(context.Background(), rule))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, limiter.Wait(ctx, rule), context.Canceled)
}

func TestEnhancedLimiter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, clock := newTestLimiter()
	enhanced := NewEnhancedLimiter(limiter, Allowance{
		Burst:     Tier{Capacity: 2, Rate: 2, Period: time.Second},
		Sustained: Tier{Capacity: 3, Rate: 3, Period: time.Hour},
	})

	for range 2 {
		result, err := enhanced.Allow(ctx, "conn", 1)
		require.NoError(t, err)
		require.True(t, result.OK)
	}

	result, err := enhanced.Allow(ctx, "conn", 1)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "conn:burst", result.Key)

	clock.Advance(time.Second)

	result, err = enhanced.Allow(ctx, "conn", 1)
	require.NoError(t, err)
	assert.True(t, result.OK)

	clock.Advance(time.Second)

	result, err = enhanced.Allow(ctx, "conn", 1)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "conn:sustained", result.Key)

	enhanced.SetAllowance("vip", Allowance{
		Burst:     Tier{Capacity: 100, Rate: 100, Period: time.Second},
		Sustained: Tier{Capacity: 100, Rate: 100, Period: time.Second},
	})

	rules := enhanced.Rules("vip", 1)
	require.Len(t, rules, 2)
	assert.InDelta(t, 100, rules[0].Capacity, 1e-9)
}

func TestRateLimitError(t *testing.T) {
	t.Parallel()

	err := &RateLimitError{Key: "k", RetryAt: time.Unix(0, 0).UTC()}
	assert.True(t, IsRateLimited(err))
	assert.Contains(t, err.Error(), "rate limit exceeded for k")
}
