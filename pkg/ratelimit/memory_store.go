package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"golang.org/x/time/rate"
)

// MemoryStore keeps one rate.Limiter per key. Buckets count whole tokens:
// capacity rounds down and cost rounds up.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket)}
}

func (s *MemoryStore) Take(_ context.Context, rule Rule, now time.Time) (Result, error) {
	limit, burst, n := limiterShape(rule)
	if n > burst {
		return Result{}, fmt.Errorf("%w: %s cost exceeds whole-token capacity", ErrInvalidRule, rule.Key)
	}

	b := s.bucket(rule.Key, limit, burst, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limiter.Limit() != limit {
		b.limiter.SetLimitAt(now, limit)
	}

	if b.limiter.Burst() != burst {
		b.limiter.SetBurstAt(now, burst)
	}

	if now.After(b.lastSeen) {
		b.lastSeen = now
	}

	tokens := b.limiter.TokensAt(now)
	if tokens < float64(n) {
		return Result{
			OK:        false,
			Key:       rule.Key,
			Remaining: tokens,
			RetryAt:   now.Add(rule.timeFor(float64(n) - tokens)),
		}, nil
	}

	reservation := b.limiter.ReserveN(now, n)
	if !reservation.OK() || reservation.DelayFrom(now) > 0 {
		reservation.CancelAt(now)

		return Result{OK: false, Key: rule.Key, Remaining: tokens, RetryAt: now.Add(reservation.DelayFrom(now))}, nil
	}

	return Result{
		OK:          true,
		Key:         rule.Key,
		Remaining:   b.limiter.TokensAt(now),
		reservation: reservation,
	}, nil
}

// Refund cancels the reservation behind an admitted result.
func (s *MemoryStore) Refund(_ context.Context, rule Rule, taken Result, now time.Time) error {
	if taken.reservation == nil {
		return nil
	}

	s.mu.Lock()
	b, ok := s.buckets[rule.Key]
	s.mu.Unlock()

	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	taken.reservation.CancelAt(now)

	return nil
}

// State returns the bucket for key as of the last call that touched it.
func (s *MemoryStore) State(key string) (models.RateLimitState, bool) {
	s.mu.Lock()
	b, ok := s.buckets[key]
	s.mu.Unlock()

	if !ok {
		return models.RateLimitState{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return models.RateLimitState{
		Key:          key,
		Tokens:       b.limiter.TokensAt(b.lastSeen),
		LastRefillAt: b.lastSeen,
	}, true
}

func (s *MemoryStore) bucket(key string, limit rate.Limit, burst int, now time.Time) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(limit, burst), lastSeen: now}
		s.buckets[key] = b
	}

	return b
}

func limiterShape(rule Rule) (rate.Limit, int, int) {
	limit := rate.Limit(rule.Rate / rule.Period.Seconds())

	return limit, int(math.Floor(rule.Capacity)), int(math.Ceil(rule.cost()))
}
