package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Tier is one token bucket shape.
type Tier struct {
	Capacity float64
	Rate     float64
	Period   time.Duration
}

// Allowance pairs a short burst bucket with a long sustained bucket.
type Allowance struct {
	Burst     Tier
	Sustained Tier
}

// DefaultAllowance permits 10 calls per second bursting and 600 per hour.
var DefaultAllowance = Allowance{
	Burst:     Tier{Capacity: 10, Rate: 10, Period: time.Second},
	Sustained: Tier{Capacity: 600, Rate: 600, Period: time.Hour},
}

// EnhancedLimiter enforces a burst and a sustained bucket per key, with
// optional per-key overrides.
type EnhancedLimiter struct {
	*Limiter

	mu        sync.RWMutex
	defaults  Allowance
	overrides map[string]Allowance
}

func NewEnhancedLimiter(limiter *Limiter, defaults Allowance) *EnhancedLimiter {
	return &EnhancedLimiter{
		Limiter:   limiter,
		defaults:  defaults,
		overrides: make(map[string]Allowance),
	}
}

// SetAllowance overrides the buckets used for key.
func (e *EnhancedLimiter) SetAllowance(key string, allowance Allowance) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.overrides[key] = allowance
}

// Rules returns the burst and sustained rules for key.
func (e *EnhancedLimiter) Rules(key string, cost float64) []Rule {
	e.mu.RLock()
	allowance, ok := e.overrides[key]
	e.mu.RUnlock()

	if !ok {
		allowance = e.defaults
	}

	return []Rule{
		{Key: key + ":burst", Capacity: allowance.Burst.Capacity, Rate: allowance.Burst.Rate, Period: allowance.Burst.Period, Cost: cost},
		{Key: key + ":sustained", Capacity: allowance.Sustained.Capacity, Rate: allowance.Sustained.Rate, Period: allowance.Sustained.Period, Cost: cost},
	}
}

// Allow evaluates both buckets of key.
func (e *EnhancedLimiter) Allow(ctx context.Context, key string, cost float64) (Result, error) {
	return e.LimitAll(ctx, e.Rules(key, cost)...)
}
