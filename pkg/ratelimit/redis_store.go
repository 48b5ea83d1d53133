package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript is the token bucket transition, run atomically so concurrent
// workers share one bucket per key.
// Time is in milliseconds to stay exact in Lua doubles, and numbers are
// returned as strings because Redis truncates Lua floats.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
	ts = now
end

if now > ts then
	tokens = math.min(capacity, tokens + (now - ts) * per_ms)
	ts = now
end

local ok = 0
if tokens >= cost then
	tokens = tokens - cost
	ok = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ttl)

return {ok, tostring(tokens), tostring(ts)}
`)

// refundScript refills the bucket up to now, then returns cost to it without
// passing capacity.
var refundScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local per_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	return 0
end

if now > ts then
	tokens = math.min(capacity, tokens + (now - ts) * per_ms)
	ts = now
end

tokens = math.min(capacity, tokens + cost)

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ttl)

return 1
`)

// RedisStore shares buckets across processes through a Lua script.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "conduit:ratelimit:"
	}

	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Take(ctx context.Context, rule Rule, now time.Time) (Result, error) {
	values, err := takeScript.Run(ctx, s.client, []string{s.prefix + rule.Key}, scriptArgs(rule, now)...).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}

	if len(values) != 3 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply: %v", values)
	}

	ok, _ := values[0].(int64)

	tokens, err := strconv.ParseFloat(fmt.Sprint(values[1]), 64)
	if err != nil {
		return Result{}, fmt.Errorf("invalid token count in reply: %w", err)
	}

	ts, err := strconv.ParseFloat(fmt.Sprint(values[2]), 64)
	if err != nil {
		return Result{}, fmt.Errorf("invalid timestamp in reply: %w", err)
	}

	if ok == 1 {
		return Result{OK: true, Key: rule.Key, Remaining: tokens}, nil
	}

	return Result{
		OK:        false,
		Key:       rule.Key,
		Remaining: tokens,
		RetryAt:   retryAt(tokens, rule, time.UnixMilli(int64(ts))),
	}, nil
}

func (s *RedisStore) Refund(ctx context.Context, rule Rule, taken Result, now time.Time) error {
	if !taken.OK {
		return nil
	}

	err := refundScript.Run(ctx, s.client, []string{s.prefix + rule.Key}, scriptArgs(rule, now)...).Err()
	if err != nil {
		return fmt.Errorf("failed to run rate limit refund script: %w", err)
	}

	return nil
}

func scriptArgs(rule Rule, now time.Time) []any {
	// Keep idle buckets around for twice the time a full refill takes.
	ttl := rule.timeFor(rule.Capacity) * 2
	if ttl < time.Second {
		ttl = time.Second
	}

	return []any{
		strconv.FormatFloat(rule.Capacity, 'f', -1, 64),
		strconv.FormatFloat(rule.refill(time.Millisecond), 'g', -1, 64),
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatFloat(rule.cost(), 'f', -1, 64),
		ttl.Milliseconds(),
	}
}
