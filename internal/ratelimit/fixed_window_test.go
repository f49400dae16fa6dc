package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewRedisFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	return limiter, srv
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	first := limiter.Allow(ctx, "user-1")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first call should pass with 1 remaining, got %+v", first)
	}
	if !limiter.Allow(ctx, "user-1").Allowed {
		t.Fatalf("second call should pass")
	}
	third := limiter.Allow(ctx, "user-1")
	if third.Allowed || third.Remaining != 0 {
		t.Fatalf("third call should be blocked, got %+v", third)
	}
	if !limiter.Allow(ctx, "user-2").Allowed {
		t.Fatalf("other keys keep their own budget")
	}
}

func TestFixedWindowLimiterResetsOnNextWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	base := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()

	d := limiter.Allow(ctx, "user-1")
	if !d.Allowed {
		t.Fatalf("first call should pass")
	}
	if want := time.Date(2026, 3, 1, 10, 1, 0, 0, time.UTC); !d.ResetAt.Equal(want) {
		t.Fatalf("reset at = %v, want %v", d.ResetAt, want)
	}
	if limiter.Allow(ctx, "user-1").Allowed {
		t.Fatalf("second call in same window should be blocked")
	}
	limiter.now = func() time.Time { return base.Add(time.Minute) }
	if !limiter.Allow(ctx, "user-1").Allowed {
		t.Fatalf("call in next window should pass")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	limiter, srv := newTestLimiter(t, 1)
	srv.Close()
	if limiter.Allow(context.Background(), "user-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter(nil, "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil redis client")
	}
}
