package ratelimit

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// TestConfig implements the Config interface for testing
type TestConfig struct {
	DisableRateLimit bool
	PerMinute        int
	Burst            int
}

func (c *TestConfig) GetDisableRateLimit() bool { return c.DisableRateLimit }
func (c *TestConfig) GetRateLimitPerMinute() int { return c.PerMinute }
func (c *TestConfig) GetRateLimitBurst() int     { return c.Burst }

func newTestLimiter(cfg *TestConfig, now *time.Time) *Limiter {
	l := New(cfg)
	l.now = func() time.Time { return *now }
	return l
}

func TestLimiter_Disabled(t *testing.T) {
	now := time.Now()
	l := newTestLimiter(&TestConfig{DisableRateLimit: true, PerMinute: 1, Burst: 1}, &now)

	for i := 0; i < 5; i++ {
		result := l.Check("919800000001")
		if result.ShouldBlock {
			t.Fatal("Rate limiting should be disabled")
		}
		if result.Reason != "rate_limiting_disabled" {
			t.Errorf("Expected reason 'rate_limiting_disabled', got '%s'", result.Reason)
		}
	}
}

func TestLimiter_Enabled(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLimiter(&TestConfig{PerMinute: 2, Burst: 2}, &now)

	t.Run("BurstAllowed", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if result := l.Check("a"); result.ShouldBlock {
				t.Fatalf("Request %d should pass, got %+v", i, result)
			}
		}
	})

	t.Run("ThirdBlocked", func(t *testing.T) {
		result := l.Check("a")
		if !result.ShouldBlock {
			t.Fatal("Third request within a minute should be blocked")
		}
		if result.Reason != "rate_limit_active" {
			t.Errorf("Expected reason 'rate_limit_active', got '%s'", result.Reason)
		}
		if result.RemainingTime <= 0 || result.RemainingTime > 30*time.Second {
			t.Errorf("Unexpected remaining time %v", result.RemainingTime)
		}
	})

	t.Run("OtherSenderUnaffected", func(t *testing.T) {
		if result := l.Check("b"); result.ShouldBlock {
			t.Error("A different sender should not be blocked")
		}
	})

	t.Run("RefillsOverTime", func(t *testing.T) {
		now = now.Add(31 * time.Second)
		result := l.Check("a")
		if result.ShouldBlock {
			t.Errorf("Token should have refilled, got %+v", result)
		}
		if result.Reason != "rate_limit_passed" {
			t.Errorf("Expected reason 'rate_limit_passed', got '%s'", result.Reason)
		}
	})
}

func TestLimiter_BlockedCheckDoesNotConsume(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLimiter(&TestConfig{PerMinute: 1, Burst: 1}, &now)

	l.Check("a")
	for i := 0; i < 3; i++ {
		l.Check("a")
	}

	now = now.Add(61 * time.Second)
	if result := l.Check("a"); result.ShouldBlock {
		t.Errorf("Blocked attempts must not push the next token further out, got %+v", result)
	}
}

func TestLimiter_EvictsIdleSenders(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLimiter(&TestConfig{PerMinute: 6, Burst: 1}, &now)

	l.Check("a")
	l.Check("b")
	if got := l.Tracked(); got != 2 {
		t.Fatalf("Expected 2 tracked senders, got %d", got)
	}

	now = now.Add(time.Hour)
	l.Check("c")
	if got := l.Tracked(); got != 1 {
		t.Errorf("Expected idle senders to be evicted, got %d tracked", got)
	}
}

func TestLimiter_Defaults(t *testing.T) {
	l := New(&TestConfig{})
	if l.burst != 1 {
		t.Errorf("Expected default burst 1, got %d", l.burst)
	}
	if l.limit != rate.Every(10*time.Second) {
		t.Errorf("Expected default of 6 per minute, got %v", l.limit)
	}
}
