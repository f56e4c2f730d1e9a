// Package resilience isolates capability failures: one circuit breaker, one
// sliding-window rate limiter and one set of counters per capability name,
// plus retry with exponential backoff for retryable failure classes.
//
// # Circuit Breaker
//
// A closed breaker counts consecutive failures and opens once FailureThreshold
// is reached. An open breaker rejects calls with a CIRCUIT_OPEN error until
// RecoveryTimeout has elapsed; the next call moves it to half-open, where up
// to HalfOpenMaxCalls trials are admitted. Any trial success closes it, any
// trial failure opens it again.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "policy",
//		FailureThreshold: 5,
//		RecoveryTimeout:  30 * time.Second,
//		HalfOpenMaxCalls: 3,
//	})
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//		return callPolicy(ctx)
//	})
//
// # Retry
//
// TIMEOUT, NETWORK, RATE_LIMIT and SERVER_ERROR failures are retried up to
// MaxAttempts with delay min(BaseDelay*Multiplier^(attempt-1), MaxDelay) plus
// up to 10% jitter. Every other class, UNKNOWN included, fails on the first
// attempt. CIRCUIT_OPEN ends the loop.
//
// # Layer
//
// Layer combines the three per capability and is what the coordinator uses:
//
//	layer := resilience.NewLayer(resilience.DefaultConfig(), observer)
//	attempts, err := layer.ExecuteWithTimeout(ctx, "policy", 10*time.Second, func(ctx context.Context) error {
//		out, err = capability.Invoke(ctx, input)
//		return err
//	})
//
// With ExecuteWithTimeout each attempt is raced against the timeout, so a
// capability that ignores its context still fails fast with TIMEOUT and counts
// against its breaker.
package resilience
