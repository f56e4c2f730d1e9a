package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "policy",
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
		Now:              clock.Now,
	})
}

func fail(ctx context.Context) error {
	return errors.NewServerError("policy", "upstream returned 503")
}

func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(context.Background(), succeed))
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_OpensAtThresholdAndRejectsWithoutInvoking(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		require.Error(t, cb.Execute(context.Background(), fail))
		assert.Equal(t, StateClosed, cb.State())
	}
	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())

	snap := cb.Snapshot()
	assert.Equal(t, types.BreakerOpen, snap.State)
	assert.Equal(t, clock.Now().Add(30*time.Second), snap.NextAttemptAt)

	invoked := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.True(t, IsCircuitOpenError(err))
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, 0, cb.Snapshot().FailureCount)

	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), fail)
	}

	clock.Advance(29 * time.Second)
	require.Error(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	var stateDuringTrial CircuitState
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		stateDuringTrial = cb.State()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, stateDuringTrial)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), fail)
	}

	clock.Advance(31 * time.Second)
	require.Error(t, cb.Execute(context.Background(), fail))

	snap := cb.Snapshot()
	assert.Equal(t, types.BreakerOpen, snap.State)
	assert.Equal(t, clock.Now().Add(30*time.Second), snap.NextAttemptAt)
}

func TestCircuitBreaker_HalfOpenTrialBudget(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	clock.Advance(30 * time.Second)

	// three trials in flight
	for i := 0; i < 3; i++ {
		_, err := cb.beforeRequest()
		require.NoError(t, err)
	}
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.Equal(t, 3, cb.Snapshot().HalfOpenCalls)
	assert.False(t, cb.Allow())

	_, err := cb.beforeRequest()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCircuitOpen))
}

func TestCircuitBreaker_StaleOutcomeIgnored(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	generation, err := cb.beforeRequest()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, cb.State())

	// a success admitted before the trip does not close the breaker
	cb.afterRequest(generation, true)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OnStateChangeAndReset(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "audit",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), fail)
	cb.Reset()

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->CLOSED"}, transitions)
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Snapshot().NextAttemptAt.IsZero())
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "x", FailureThreshold: 1})

	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, StateOpen, cb.State())
}
