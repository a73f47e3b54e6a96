package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func exercise(t *testing.T, l Limiter, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if res.Remaining != 2-i {
			t.Fatalf("attempt %d: remaining %d", i, res.Remaining)
		}
		clock.advance(time.Second)
	}

	res, err := l.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatalf("fourth attempt should be rejected")
	}
	// 第一次请求在 3s 前，窗口 10s
	if res.RetryAfter != 7*time.Second {
		t.Fatalf("expected retry after 7s, got %s", res.RetryAfter)
	}

	other, err := l.Allow(ctx, "5.6.7.8")
	if err != nil || !other.Allowed {
		t.Fatalf("other keys are independent: %+v %v", other, err)
	}

	clock.advance(8 * time.Second)
	res, err = l.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("oldest hit left the window, attempt should pass")
	}
}

func TestMemoryWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryWindow(3, 10*time.Second)
	l.now = clock.now
	exercise(t, l, clock)

	clock.advance(time.Minute)
	l.Sweep()
	if len(l.hits) != 0 {
		t.Fatalf("expected sweep to drop expired keys, got %d", len(l.hits))
	}
}

func TestRedisWindow(t *testing.T) {
	rdb := newMiniRedis(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewRedisWindow(rdb, "kanbanhub:ratelimit:auth:", 3, 10*time.Second)
	l.now = clock.now
	exercise(t, l, clock)
}

func TestZeroLimitDisables(t *testing.T) {
	res, err := NewMemoryWindow(0, time.Minute).Allow(context.Background(), "k")
	if err != nil || !res.Allowed {
		t.Fatalf("zero limit should allow: %+v %v", res, err)
	}
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
