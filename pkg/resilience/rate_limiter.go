package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
)

// RateLimitConfig holds the sliding window limits
type RateLimitConfig struct {
	// Window is the rolling period requests are counted over
	Window time.Duration
	// MaxRequests is the number of calls admitted per window
	MaxRequests int
	// Overrides sets MaxRequests per capability name
	Overrides map[string]int
}

// DefaultRateLimitConfig returns 100 calls per minute
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:      time.Minute,
		MaxRequests: 100,
	}
}

// SlidingWindowLimiter admits at most limit calls in any rolling window.
// It keeps the timestamp of every admitted call inside the window.
type SlidingWindowLimiter struct {
	name   string
	window time.Duration
	limit  int
	now    func() time.Time

	mu         sync.Mutex
	timestamps []time.Time
}

// NewSlidingWindowLimiter creates a limiter for one capability
func NewSlidingWindowLimiter(name string, window time.Duration, limit int, now func() time.Time) *SlidingWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &SlidingWindowLimiter{
		name:       name,
		window:     window,
		limit:      limit,
		now:        now,
		timestamps: make([]time.Time, 0, limit),
	}
}

// Allow records a call and returns nil, or returns a RATE_LIMIT error when the window is full
func (l *SlidingWindowLimiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.timestamps) >= l.limit {
		retryAfter := l.timestamps[0].Add(l.window).Sub(now)
		return errors.NewRateLimitError(fmt.Sprintf("rate limit exceeded for %s", l.name)).
			WithDetail("capability", l.name).
			WithDetail("retry_after", retryAfter.String())
	}

	l.timestamps = append(l.timestamps, now)
	return nil
}

// InFlight returns how many calls are counted in the current window
func (l *SlidingWindowLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.timestamps)
}

// Reset forgets every recorded call
func (l *SlidingWindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = l.timestamps[:0]
}

// prune drops timestamps that have left the window; timestamps are appended in order
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
