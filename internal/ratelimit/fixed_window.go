package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

const (
	defaultPrefix = "study:ratelimit"
	redisTimeout  = 2 * time.Second
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// FixedWindowLimiter caps calls per key in a fixed time window, counted in Redis
// so every replica of the service shares the same budget.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisFixedWindowLimiter builds a limiter on an existing Redis client.
func NewRedisFixedWindowLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		client: client,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Limit returns the configured per-window quota.
func (l *FixedWindowLimiter) Limit() int {
	return l.limit
}

// Allow counts one call for key. Redis failures deny the call.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	now := l.now().UTC()
	slot := now.UnixMilli() / windowMs
	resetAt := time.UnixMilli((slot + 1) * windowMs).UTC()

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return Decision{ResetAt: resetAt}
	}
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
