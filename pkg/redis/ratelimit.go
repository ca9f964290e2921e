package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Limit is a sliding-window allowance: at most Requests per Window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// RateLimitResult is the outcome of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	RetryIn   time.Duration
}

// slidingWindowScript trims entries older than the window, then admits the call if the
// remaining count is under the limit. On refusal it returns the oldest score so the caller
// can compute Retry-After.
var slidingWindowScript = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call("zremrangebyscore", key, "-inf", window_start)
	local current = redis.call("zcard", key)

	if current < limit then
		redis.call("zadd", key, now, member)
		redis.call("pexpire", key, window_ms)
		return {1, limit - current - 1}
	end

	local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
	if #oldest > 0 then
		return {0, 0, oldest[2]}
	end
	return {0, 0, 0}
`)

// RateLimiter implements a sliding window rate limiter on a sorted set
type RateLimiter struct {
	client    *Client
	keyPrefix string
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, keyPrefix string) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "bellflower:ratelimit:"
	}
	return &RateLimiter{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// Allow records a request for key and reports whether it fits the limit
func (r *RateLimiter) Allow(ctx context.Context, key string, limit Limit) (*RateLimitResult, error) {
	now := r.now()
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())

	result, err := slidingWindowScript.Run(ctx, r.client.rdb, []string{r.keyPrefix + key},
		now.UnixMilli(),
		now.Add(-limit.Window).UnixMilli(),
		limit.Requests,
		limit.Window.Milliseconds(),
		member,
	).Slice()
	if err != nil {
		return nil, err
	}

	return parseWindowResult(result, now, limit.Window)
}

func parseWindowResult(result []interface{}, now time.Time, window time.Duration) (*RateLimitResult, error) {
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected rate limit reply of length %d", len(result))
	}

	allowed, err := toInt64(result[0])
	if err != nil {
		return nil, err
	}
	remaining, err := toInt64(result[1])
	if err != nil {
		return nil, err
	}

	res := &RateLimitResult{Allowed: allowed == 1, Remaining: remaining}
	if !res.Allowed && len(result) > 2 {
		oldestMs, err := toInt64(result[2])
		if err != nil {
			return nil, err
		}
		if oldestMs > 0 {
			res.RetryIn = time.UnixMilli(oldestMs).Add(window).Sub(now)
		}
		if res.RetryIn < 0 {
			res.RetryIn = 0
		}
	}
	return res, nil
}

// toInt64 normalizes Lua replies, which arrive as int64 or as strings for WITHSCORES.
func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
			return parsed, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric reply %q: %w", n, err)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
