package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config interface for rate limiting configuration
type Config interface {
	GetDisableRateLimit() bool
	GetRateLimitPerMinute() int
	GetRateLimitBurst() int
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	ShouldBlock   bool
	RemainingTime time.Duration
	Reason        string
}

// Limiter throttles tracking commands per sender
type Limiter struct {
	disabled bool
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	senders map[string]*senderLimiter
}

type senderLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter from configuration
func New(cfg Config) *Limiter {
	perMinute := cfg.GetRateLimitPerMinute()
	if perMinute <= 0 {
		perMinute = 6
	}
	burst := cfg.GetRateLimitBurst()
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		disabled: cfg.GetDisableRateLimit(),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		idleTTL:  30 * time.Minute,
		now:      time.Now,
		senders:  make(map[string]*senderLimiter),
	}
}

// Check consumes one token for key when available
func (l *Limiter) Check(key string) RateLimitResult {
	if l.disabled {
		return RateLimitResult{
			ShouldBlock: false,
			Reason:      "rate_limiting_disabled",
		}
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictIdle(now)

	s, ok := l.senders[key]
	if !ok {
		s = &senderLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.senders[key] = s
	}
	s.lastSeen = now

	reservation := s.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return RateLimitResult{ShouldBlock: true, Reason: "rate_limit_exceeded"}
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return RateLimitResult{
			ShouldBlock:   true,
			RemainingTime: delay,
			Reason:        "rate_limit_active",
		}
	}

	return RateLimitResult{
		ShouldBlock: false,
		Reason:      "rate_limit_passed",
	}
}

// evictIdle drops senders not seen for idleTTL; caller holds mu
func (l *Limiter) evictIdle(now time.Time) {
	for key, s := range l.senders {
		if now.Sub(s.lastSeen) > l.idleTTL {
			delete(l.senders, key)
		}
	}
}

// Tracked returns how many senders currently have limiter state
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.senders)
}
