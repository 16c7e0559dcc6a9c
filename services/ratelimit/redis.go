package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// admitScript implements the sliding window atomically: prune entries older
// than the window, reject when the remaining count has reached the limit,
// otherwise record the admission.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLimiter is a Redis-backed sliding-window rate limiter sharing state
// across gateway instances. Entries live in a per-caller sorted set scored
// by admission time.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	logger *zap.Logger
}

// NewRedisLimiter creates a Redis-backed limiter admitting at most
// maxRequestsPerMinute requests per caller per trailing minute. A
// non-positive limit disables limiting.
func NewRedisLimiter(client *redis.Client, maxRequestsPerMinute int, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, limit: maxRequestsPerMinute, logger: logger}
}

// Admit runs the sliding-window script for the caller's key
func (l *RedisLimiter) Admit(ctx context.Context, callerID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:caller:%s", callerID)
	now := time.Now().UnixMilli()

	// Members must be unique or same-millisecond admissions collapse into one
	// sorted-set entry and undercount.
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	allowed, err := admitScript.Run(ctx, l.client, []string{key},
		now, windowDuration.Milliseconds(), l.limit, member).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	if allowed == 0 {
		l.logger.Debug("rate limit rejection",
			zap.String("caller_id", callerID),
			zap.Int("limit", l.limit))
		return false, nil
	}
	return true, nil
}
