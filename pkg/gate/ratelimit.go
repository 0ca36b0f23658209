package gate

import (
	"sync"
	"time"
)

const (
	DefaultRateLimit  = 6
	DefaultRateWindow = time.Minute
)

// RateLimiter admits a fixed number of requests per rolling window. It
// keeps one counter and the window's start timestamp, never a per-request
// log, so memory use stays constant over long process lifetimes.
type RateLimiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
	nowFn       func() time.Time
}

// NewRateLimiter creates a limiter granting limit slots per window.
// Non-positive arguments fall back to the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		nowFn:  time.Now,
	}
}

// Allow atomically grants or denies a slot in the current window.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFn()
	if now.Sub(rl.windowStart) >= rl.window {
		rl.windowStart = now
		rl.count = 0
	}
	if rl.count >= rl.limit {
		return false
	}
	rl.count++
	return true
}

// Remaining returns the slots left in the current window.
func (rl *RateLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.nowFn().Sub(rl.windowStart) >= rl.window {
		return rl.limit
	}
	left := rl.limit - rl.count
	if left < 0 {
		return 0
	}
	return left
}
