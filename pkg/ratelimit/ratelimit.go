// Package ratelimit implements keyed token buckets shared by every API call
// made through a connection.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

var ErrInvalidRule = errors.New("invalid rate limit rule")

// Rule is a token bucket holding at most Capacity tokens and refilling
// Rate tokens every Period.
type Rule struct {
	Key      string
	Capacity float64
	Rate     float64
	Period   time.Duration
	Cost     float64
}

func (r Rule) Validate() error {
	switch {
	case r.Key == "":
		return fmt.Errorf("%w: key is empty", ErrInvalidRule)
	case r.Capacity <= 0:
		return fmt.Errorf("%w: %s capacity must be positive", ErrInvalidRule, r.Key)
	case r.Rate <= 0 || r.Period <= 0:
		return fmt.Errorf("%w: %s rate and period must be positive", ErrInvalidRule, r.Key)
	case r.cost() > r.Capacity:
		return fmt.Errorf("%w: %s cost exceeds capacity", ErrInvalidRule, r.Key)
	}

	return nil
}

func (r Rule) cost() float64 {
	if r.Cost <= 0 {
		return 1
	}

	return r.Cost
}

// refill returns the tokens accrued over elapsed.
func (r Rule) refill(elapsed time.Duration) float64 {
	return float64(elapsed) * r.Rate / float64(r.Period)
}

// timeFor returns how long the bucket needs to accrue tokens.
func (r Rule) timeFor(tokens float64) time.Duration {
	return time.Duration(math.Ceil(tokens * float64(r.Period) / r.Rate))
}

// Result is the outcome of a limit evaluation.
type Result struct {
	OK        bool
	Key       string
	Remaining float64
	RetryAt   time.Time

	reservation *rate.Reservation
}

// RateLimitError is returned when a fail-fast caller is rejected.
type RateLimitError struct {
	Key     string
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry at %s", e.Key, e.RetryAt.Format(time.RFC3339Nano))
}

// IsRateLimited reports whether err is a RateLimitError.
func IsRateLimited(err error) bool {
	var rateErr *RateLimitError

	return errors.As(err, &rateErr)
}

// StateStore applies one take against a bucket atomically. Refund returns
// the cost of an admitted take when a later rule of the same call rejects.
type StateStore interface {
	Take(ctx context.Context, rule Rule, now time.Time) (Result, error)
	Refund(ctx context.Context, rule Rule, taken Result, now time.Time) error
}

// Limiter evaluates rules against a state store.
type Limiter struct {
	store  StateStore
	clock  clockwork.Clock
	logger *slog.Logger
}

type Option func(*Limiter)

func WithClock(clock clockwork.Clock) Option {
	return func(l *Limiter) { l.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func NewLimiter(store StateStore, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Limiter) Clock() clockwork.Clock {
	return l.clock
}

// Limit admits the call when enough tokens are available and deducts them.
// A rejection leaves the bucket untouched and reports when to retry.
func (l *Limiter) Limit(ctx context.Context, rule Rule) (Result, error) {
	err := rule.Validate()
	if err != nil {
		return Result{}, err
	}

	return l.take(ctx, rule, l.clock.Now())
}

// LimitAll admits the call only when every rule admits it. Rules are taken in
// order; on the first rejection the rules already taken are refunded, so a
// rejected call costs nothing.
func (l *Limiter) LimitAll(ctx context.Context, rules ...Rule) (Result, error) {
	for _, rule := range rules {
		err := rule.Validate()
		if err != nil {
			return Result{}, err
		}
	}

	now := l.clock.Now()
	last := Result{OK: true}
	taken := make([]Result, 0, len(rules))

	for i, rule := range rules {
		result, err := l.take(ctx, rule, now)
		if err != nil {
			l.refund(ctx, rules[:i], taken, now)

			return Result{}, err
		}

		if !result.OK {
			l.refund(ctx, rules[:i], taken, now)

			return result, nil
		}

		taken = append(taken, result)
		last = result
	}

	return last, nil
}

func (l *Limiter) take(ctx context.Context, rule Rule, now time.Time) (Result, error) {
	result, err := l.store.Take(ctx, rule, now)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit store failed for %s: %w", rule.Key, err)
	}

	if !result.OK {
		l.logger.DebugContext(ctx, "rate limit rejected", "key", rule.Key, "retry_at", result.RetryAt)
	}

	return result, nil
}

func (l *Limiter) refund(ctx context.Context, rules []Rule, taken []Result, now time.Time) {
	for i := len(taken) - 1; i >= 0; i-- {
		err := l.store.Refund(ctx, rules[i], taken[i], now)
		if err != nil {
			l.logger.WarnContext(ctx, "failed to refund rate limit tokens", "key", rules[i].Key, "error", err)
		}
	}
}

// Wait blocks until every rule admits the call or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rules ...Rule) error {
	for {
		result, err := l.LimitAll(ctx, rules...)
		if err != nil {
			return err
		}

		if result.OK {
			return nil
		}

		delay := result.RetryAt.Sub(l.clock.Now())
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(delay):
		}
	}
}

func retryAt(tokens float64, rule Rule, from time.Time) time.Time {
	return from.Add(rule.timeFor(rule.cost() - tokens))
}
