package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/resilience"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// DefaultBufferSize is the number of events queued before new ones are dropped
const DefaultBufferSize = 1024

// Sink receives dispatched events. Sinks run on the dispatcher goroutine.
type Sink interface {
	Handle(ctx context.Context, event Event) error
	Name() string
}

// Dispatcher fans events out to sinks from a single background goroutine.
// Emit never blocks: when the buffer is full the event is dropped.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}

	emitted atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewDispatcher creates a dispatcher; call Start before emitting
func NewDispatcher(bufferSize int, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, bufferSize),
		metrics: m,
		logger:  logging.GetLogger(),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery goroutine
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	d.logger.Info("Event dispatcher started", "sinks", names, "buffer", cap(d.queue))

	go d.run()
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstErr error
	for _, s := range d.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close sink %s: %w", s.Name(), err)
			}
		}
	}
	return firstErr
}

// Emit queues an event; it reports false when the event was dropped
func (d *Dispatcher) Emit(event Event) bool {
	if d == nil {
		return false
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop()
		return false
	}

	select {
	case d.queue <- event:
		d.emitted.Add(1)
		return true
	default:
		d.drop()
		return false
	}
}

// Stats reports emitted, dropped and sink-failure counts
func (d *Dispatcher) Stats() (emitted, dropped, failed int64) {
	return d.emitted.Load(), d.dropped.Load(), d.failed.Load()
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	d.metrics.RecordDroppedEvent()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ctx := context.Background()
	for event := range d.queue {
		for _, s := range d.sinks {
			d.deliver(ctx, s, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("Event sink panicked", "sink", s.Name(), "panic", fmt.Sprint(r))
		}
	}()
	if err := s.Handle(ctx, event); err != nil {
		d.failed.Add(1)
		d.logger.Warn("Event sink failed",
			"sink", s.Name(),
			"event_type", string(event.Type),
			"error", err.Error(),
		)
	}
}

// BreakerStateChanged implements resilience.Observer
func (d *Dispatcher) BreakerStateChanged(name string, from, to resilience.CircuitState) {
	severity := SeverityInfo
	switch to {
	case resilience.StateOpen:
		severity = SeverityCritical
	case resilience.StateHalfOpen:
		severity = SeverityWarning
	}
	d.Emit(Event{
		Type:       TypeBreakerTransition,
		Severity:   severity,
		Capability: name,
		Outcome:    string(to.BreakerState()),
		Tags:       map[string]string{"from": string(from.BreakerState())},
	})
}

// RetryScheduled implements resilience.Observer
func (d *Dispatcher) RetryScheduled(name string, attempt int, err error, delay time.Duration) {
	tags := map[string]string{
		"attempt":  fmt.Sprintf("%d", attempt),
		"delay_ms": fmt.Sprintf("%d", delay.Milliseconds()),
	}
	if err != nil {
		tags["error_kind"] = string(resilience.Classify(err))
	}
	d.Emit(Event{
		Type:       TypeRetryScheduled,
		Severity:   SeverityWarning,
		Capability: name,
		Tags:       tags,
	})
}

// RateLimited implements resilience.Observer
func (d *Dispatcher) RateLimited(name string) {
	d.Emit(Event{
		Type:       TypeRateLimited,
		Severity:   SeverityWarning,
		Capability: name,
	})
}

// CapabilityCompleted implements coordinator.Observer
func (d *Dispatcher) CapabilityCompleted(ctx context.Context, requestID string, result types.AgentResult) {
	event := Event{
		Type:       TypeCapabilityCompleted,
		Severity:   SeverityInfo,
		RequestID:  requestID,
		Capability: result.Capability,
		Outcome:    "success",
		LatencyMs:  result.ExecutionTimeMs,
		Tags:       map[string]string{"attempts": fmt.Sprintf("%d", result.Attempts)},
	}
	if !result.Success {
		event.Severity = SeverityError
		event.Outcome = string(result.ErrorKind)
	}
	d.Emit(event)
}

// CacheLookup records a result cache hit or miss
func (d *Dispatcher) CacheLookup(requestID, key string, hit bool) {
	event := Event{
		Type:      TypeCacheMiss,
		Severity:  SeverityInfo,
		RequestID: requestID,
		Outcome:   "miss",
		Tags:      map[string]string{"key": key},
	}
	if hit {
		event.Type = TypeCacheHit
		event.Outcome = "hit"
	}
	d.Emit(event)
}

// OrchestrationCompleted records the final decision of a request
func (d *Dispatcher) OrchestrationCompleted(decision *types.Decision) {
	if decision == nil {
		return
	}
	severity := SeverityInfo
	switch decision.Status {
	case types.StatusError:
		severity = SeverityError
	case types.StatusRequiresHumanReview:
		severity = SeverityWarning
	}
	tags := map[string]string{
		"confidence": fmt.Sprintf("%.2f", decision.Confidence),
		"cached":     fmt.Sprintf("%t", decision.Cached),
	}
	if decision.Complexity != nil {
		tags["level"] = string(decision.Complexity.Level)
	}
	if decision.ExecutionType != "" {
		tags["execution_type"] = string(decision.ExecutionType)
	}
	d.Emit(Event{
		Type:      TypeOrchestrationCompleted,
		Severity:  severity,
		RequestID: decision.RequestID,
		Outcome:   string(decision.Status),
		LatencyMs: decision.ProcessingTimeMs,
		Tags:      tags,
	})
}
