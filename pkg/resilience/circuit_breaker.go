package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, limited trial requests are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerState maps the state onto the shared snapshot vocabulary
func (s CircuitState) BreakerState() types.BreakerState {
	switch s {
	case StateOpen:
		return types.BreakerOpen
	case StateHalfOpen:
		return types.BreakerHalfOpen
	default:
		return types.BreakerClosed
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics
	Name string
	// FailureThreshold is the number of consecutive failures that opens a closed circuit
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before admitting trial calls
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls bounds the trial calls admitted while half-open
	HalfOpenMaxCalls int
	// OnStateChange is called with the lock held whenever the state changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns the default breaker settings for name
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker is a per-capability fail-fast state machine
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenMaxCalls int
	onStateChange    func(name string, from CircuitState, to CircuitState)
	now              func() time.Time

	mutex         sync.Mutex
	state         CircuitState
	generation    uint64
	failureCount  int
	halfOpenCalls int
	nextAttemptAt time.Time

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig(config.Name)
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = defaults.HalfOpenMaxCalls
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		recoveryTimeout:  config.RecoveryTimeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		onStateChange:    config.OnStateChange,
		now:              config.Now,
		logger:           logging.GetLogger(),
	}
}

// Execute runs fn if the circuit breaker admits it and records the outcome.
// A rejected call returns a CIRCUIT_OPEN AppError without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(generation, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	cb.afterRequest(generation, err == nil)
	return err
}

// Allow reports whether a call would currently be admitted, without consuming a trial slot
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		return !cb.now().Before(cb.nextAttemptAt)
	case StateHalfOpen:
		return cb.halfOpenCalls < cb.halfOpenMaxCalls
	default:
		return true
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Snapshot returns a copy of the breaker record
func (cb *CircuitBreaker) Snapshot() types.CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return types.CircuitBreakerState{
		State:         cb.state.BreakerState(),
		FailureCount:  cb.failureCount,
		NextAttemptAt: cb.nextAttemptAt,
		HalfOpenCalls: cb.halfOpenCalls,
	}
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the breaker back to closed with a clean record
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed, cb.now())
	cb.failureCount = 0
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.now()
	switch cb.state {
	case StateOpen:
		if now.Before(cb.nextAttemptAt) {
			return cb.generation, errors.NewCircuitOpenError(cb.name).
				WithDetail("next_attempt_at", cb.nextAttemptAt.Format(time.RFC3339Nano))
		}
		cb.setState(StateHalfOpen, now)
		cb.halfOpenCalls++
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return cb.generation, errors.NewCircuitOpenError(cb.name).
				WithDetail("reason", "half-open trial budget exhausted")
		}
		cb.halfOpenCalls++
	}

	return cb.generation, nil
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	// outcomes of calls admitted under an earlier state are stale
	if cb.generation != before {
		return
	}

	now := cb.now()
	if success {
		cb.onSuccess(now)
	} else {
		cb.onFailure(now)
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed, now)
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.failureCount++

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.generation++
	cb.halfOpenCalls = 0

	switch state {
	case StateOpen:
		cb.nextAttemptAt = now.Add(cb.recoveryTimeout)
	case StateClosed:
		cb.failureCount = 0
		cb.nextAttemptAt = time.Time{}
	}

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"failure_count", cb.failureCount,
	)
}

// IsCircuitOpenError checks if an error is a circuit breaker rejection
func IsCircuitOpenError(err error) bool {
	return errors.IsType(err, errors.ErrorTypeCircuitOpen)
}

// String implements fmt.Stringer for log output
func (cb *CircuitBreaker) String() string {
	s := cb.Snapshot()
	return fmt.Sprintf("%s[%s failures=%d]", cb.name, s.State, s.FailureCount)
}
