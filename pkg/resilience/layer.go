package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Observer receives resilience events. Implementations must not block and
// must not call back into the Layer.
type Observer interface {
	BreakerStateChanged(name string, from, to CircuitState)
	RetryScheduled(name string, attempt int, err error, delay time.Duration)
	RateLimited(name string)
}

// Config holds the settings applied to every capability
type Config struct {
	Breaker   CircuitBreakerConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	// Now overrides the clock of breakers and limiters
	Now func() time.Time
}

// DefaultConfig returns the default resilience settings
func DefaultConfig() Config {
	return Config{
		Breaker:   DefaultCircuitBreakerConfig(""),
		Retry:     DefaultRetryConfig(),
		RateLimit: DefaultRateLimitConfig(),
	}
}

// CapabilityStats are the running counters of one capability
type CapabilityStats struct {
	Calls             int64                     `json:"calls"`
	Successes         int64                     `json:"successes"`
	Failures          int64                     `json:"failures"`
	Retries           int64                     `json:"retries"`
	RateLimited       int64                     `json:"rate_limited"`
	CircuitRejections int64                     `json:"circuit_rejections"`
	AvgLatencyMs      float64                   `json:"avg_latency_ms"`
	LastErrorKind     errors.ErrorType          `json:"last_error_kind,omitempty"`
	LastError         string                    `json:"last_error,omitempty"`
	Breaker           types.CircuitBreakerState `json:"breaker"`

	totalLatency time.Duration
}

// Layer owns one circuit breaker, one rate limiter and one stats record per capability name
type Layer struct {
	config   Config
	observer Observer
	logger   *logging.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	limiters map[string]*SlidingWindowLimiter
	stats    map[string]*CapabilityStats
}

// NewLayer creates a resilience layer; observer may be nil
func NewLayer(config Config, observer Observer) *Layer {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.RateLimit.Window <= 0 || config.RateLimit.MaxRequests <= 0 {
		defaults := DefaultRateLimitConfig()
		config.RateLimit.Window = defaults.Window
		config.RateLimit.MaxRequests = defaults.MaxRequests
	}

	return &Layer{
		config:   config,
		observer: observer,
		logger:   logging.GetLogger(),
		breakers: make(map[string]*CircuitBreaker),
		limiters: make(map[string]*SlidingWindowLimiter),
		stats:    make(map[string]*CapabilityStats),
	}
}

// Breaker returns the breaker for name, creating it on first use
func (l *Layer) Breaker(name string) *CircuitBreaker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.breakerLocked(name)
}

func (l *Layer) breakerLocked(name string) *CircuitBreaker {
	if cb, ok := l.breakers[name]; ok {
		return cb
	}

	cfg := l.config.Breaker
	cfg.Name = name
	cfg.Now = l.config.Now
	cfg.OnStateChange = func(name string, from, to CircuitState) {
		if l.observer != nil {
			l.observer.BreakerStateChanged(name, from, to)
		}
	}

	cb := NewCircuitBreaker(cfg)
	l.breakers[name] = cb
	return cb
}

func (l *Layer) limiter(name string) *SlidingWindowLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[name]; ok {
		return lim
	}

	limit := l.config.RateLimit.MaxRequests
	if override, ok := l.config.RateLimit.Overrides[name]; ok && override > 0 {
		limit = override
	}
	lim := NewSlidingWindowLimiter(name, l.config.RateLimit.Window, limit, l.config.Now)
	l.limiters[name] = lim
	return lim
}

func (l *Layer) record(name string, fn func(s *CapabilityStats)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stats[name]
	if !ok {
		s = &CapabilityStats{}
		l.stats[name] = s
	}
	fn(s)
}

// Execute runs op for capability name behind its rate limiter, circuit
// breaker and retry policy. It returns the number of attempts that reached
// op and the final error. A rate limit rejection returns zero attempts.
func (l *Layer) Execute(ctx context.Context, name string, op func(context.Context) error) (int, error) {
	return l.ExecuteWithTimeout(ctx, name, 0, op)
}

// ExecuteWithTimeout is Execute with every attempt raced against timeout. An
// attempt still running at the deadline fails with TIMEOUT, which the breaker
// and the retrier see like any other failure. The late call is abandoned: its
// context is cancelled but nothing waits for it. A timeout <= 0 disables the race.
func (l *Layer) ExecuteWithTimeout(ctx context.Context, name string, timeout time.Duration, op func(context.Context) error) (int, error) {
	if err := l.limiter(name).Allow(); err != nil {
		l.record(name, func(s *CapabilityStats) {
			s.RateLimited++
			s.LastErrorKind = errors.ErrorTypeRateLimit
			s.LastError = err.Error()
		})
		if l.observer != nil {
			l.observer.RateLimited(name)
		}
		return 0, err
	}

	breaker := l.Breaker(name)

	retryConfig := l.config.Retry
	userOnRetry := retryConfig.OnRetry
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		l.record(name, func(s *CapabilityStats) { s.Retries++ })
		if l.observer != nil {
			l.observer.RetryScheduled(name, attempt, err, delay)
		}
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}
	retrier := NewRetrier(retryConfig)

	invoked := 0
	start := time.Now()
	_, err := retrier.Execute(ctx, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			invoked++
			if timeout <= 0 {
				return op(ctx)
			}
			return raceAttempt(ctx, name, timeout, op)
		})
	})
	elapsed := time.Since(start)

	l.record(name, func(s *CapabilityStats) {
		s.Calls++
		s.totalLatency += elapsed
		s.AvgLatencyMs = float64(s.totalLatency.Milliseconds()) / float64(s.Calls)
		switch {
		case err == nil:
			s.Successes++
		case IsCircuitOpenError(err) && invoked == 0:
			s.CircuitRejections++
			s.LastErrorKind = errors.ErrorTypeCircuitOpen
			s.LastError = err.Error()
		default:
			s.Failures++
			s.LastErrorKind = Classify(err)
			s.LastError = err.Error()
		}
	})

	return invoked, err
}

// raceAttempt runs one attempt of op in its own goroutine and returns when it
// finishes or when timeout elapses, whichever comes first. A panic in op
// becomes an INTERNAL error.
func raceAttempt(ctx context.Context, name string, timeout time.Duration, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.NewInternalError(fmt.Sprintf("capability %s panicked: %v", name, r))
			}
		}()
		done <- op(attemptCtx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
			return attemptTimeout(name, timeout)
		}
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return errors.NewTimeoutError(fmt.Sprintf("capability %s", name)).WithCause(ctx.Err())
		}
		return attemptTimeout(name, timeout)
	}
}

func attemptTimeout(name string, timeout time.Duration) error {
	return errors.NewTimeoutError(fmt.Sprintf("capability %s", name)).
		WithDetail("timeout_ms", fmt.Sprintf("%d", timeout.Milliseconds()))
}

// Stats returns a copy of every capability's counters with its breaker snapshot
func (l *Layer) Stats() map[string]CapabilityStats {
	l.mu.Lock()
	names := make(map[string]struct{}, len(l.stats)+len(l.breakers))
	for name := range l.stats {
		names[name] = struct{}{}
	}
	for name := range l.breakers {
		names[name] = struct{}{}
	}
	out := make(map[string]CapabilityStats, len(names))
	for name := range names {
		var s CapabilityStats
		if existing, ok := l.stats[name]; ok {
			s = *existing
		}
		if cb, ok := l.breakers[name]; ok {
			s.Breaker = cb.Snapshot()
		} else {
			s.Breaker = types.CircuitBreakerState{State: types.BreakerClosed}
		}
		out[name] = s
	}
	l.mu.Unlock()
	return out
}

// BreakerStates returns a snapshot of every breaker keyed by capability name
func (l *Layer) BreakerStates() map[string]types.CircuitBreakerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]types.CircuitBreakerState, len(l.breakers))
	for name, cb := range l.breakers {
		out[name] = cb.Snapshot()
	}
	return out
}

// Reset closes the breaker of name and clears its rate window; false if unknown
func (l *Layer) Reset(name string) bool {
	l.mu.Lock()
	cb, hasBreaker := l.breakers[name]
	lim, hasLimiter := l.limiters[name]
	l.mu.Unlock()

	if hasBreaker {
		cb.Reset()
	}
	if hasLimiter {
		lim.Reset()
	}
	return hasBreaker || hasLimiter
}

// ResetAll closes every breaker and clears every rate window
func (l *Layer) ResetAll() []string {
	l.mu.Lock()
	names := make([]string, 0, len(l.breakers))
	for name := range l.breakers {
		names = append(names, name)
	}
	l.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		l.Reset(name)
	}

	l.logger.Info("All circuit breakers reset", "count", len(names))
	return names
}
