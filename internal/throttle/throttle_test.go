package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type limiter interface {
	Check(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{MaxAttempts: 3, Window: time.Minute, Prefix: "t:"}
}

func exerciseBudget(t *testing.T, l limiter) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Fail(ctx, "a@example.com"); err != nil {
			t.Fatalf("fail %d: unexpected %v", i, err)
		}
	}
	if err := l.Check(ctx, "a@example.com"); err != nil {
		t.Fatalf("expected budget left, got %v", err)
	}
	if err := l.Fail(ctx, "a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on third failure, got %v", err)
	}
	if err := l.Check(ctx, "a@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected Check to report ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "b@example.com"); err != nil {
		t.Fatalf("keys must be independent, got %v", err)
	}
	if err := l.Reset(ctx, "a@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, "a@example.com"); err != nil {
		t.Fatalf("expected budget after reset, got %v", err)
	}
}

func TestMemoryBudget(t *testing.T) {
	m, err := NewMemory(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	exerciseBudget(t, m)
}

func TestMemoryWindowExpires(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	m, err := NewMemory(testConfig(), c.Now)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = m.Fail(ctx, "k")
	}
	if err := m.Check(ctx, "k"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	c.Advance(time.Minute)
	if err := m.Check(ctx, "k"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestRedisBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r, err := NewRedis(client, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	exerciseBudget(t, r)

	ctx := context.Background()
	_ = r.Fail(ctx, "c")
	if ttl := mr.TTL("t:c"); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}
	_ = r.Fail(ctx, "c")
	_ = r.Fail(ctx, "c")
	mr.FastForward(time.Minute)
	if err := r.Check(ctx, "c"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	r, err := NewRedis(client, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	mr.Close()

	if err := r.Fail(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewMemory(Config{Window: time.Second}, nil); err == nil {
		t.Fatal("expected MaxAttempts error")
	}
	if _, err := NewMemory(Config{MaxAttempts: 1}, nil); err == nil {
		t.Fatal("expected Window error")
	}
	if _, err := NewRedis(nil, DefaultConfig()); err == nil {
		t.Fatal("expected nil client error")
	}
}
