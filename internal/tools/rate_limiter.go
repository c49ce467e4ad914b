package tools

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ToolRateLimiter is a per-key token bucket for tool executions.
// Keys are typically the calling user or workspace.
type ToolRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	r       rate.Limit
	burst   int
	perMin  int
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewToolRateLimiter allows perMinute calls per key with a burst of the same
// size. Pass 0 to disable rate limiting.
func NewToolRateLimiter(perMinute int) *ToolRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ToolRateLimiter{
		entries: make(map[string]*limiterEntry),
		r:       rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		perMin:  perMinute,
		now:     time.Now,
	}
}

// Allow returns nil if a call for key may proceed.
func (rl *ToolRateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.entries[key] = e
	}
	e.lastSeen = now
	if !e.limiter.AllowN(now, 1) {
		return fmt.Errorf("tool rate limit exceeded: %d calls/minute for key %s", rl.perMin, key)
	}
	return nil
}

// Cleanup drops keys idle for longer than idle.
func (rl *ToolRateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, e := range rl.entries {
		if e.lastSeen.Before(cutoff) {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}
