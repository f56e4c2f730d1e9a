package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NikhilSetiya/governance-orchestrator/internal/workflow"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/resilience"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/tracing"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Resolver looks up capabilities by name; *capability.Registry satisfies it
type Resolver interface {
	Get(name string) (capability.Capability, error)
}

// Observer is told about every finished capability invocation. It is called
// from the goroutine that ran the invocation.
type Observer interface {
	CapabilityCompleted(ctx context.Context, requestID string, result types.AgentResult)
}

// Config contains coordinator configuration
type Config struct {
	MaxConcurrentAgents int `json:"max_concurrent_agents"`
}

// DefaultConfig returns default coordinator configuration
func DefaultConfig() Config {
	return Config{MaxConcurrentAgents: 5}
}

// Plan is one run of a workflow template for a request
type Plan struct {
	Request    *types.Request
	Complexity types.ComplexityScore
	Template   types.WorkflowTemplate
	Parallel   bool
}

// Coordinator runs workflow templates through the resilience layer
type Coordinator struct {
	resolver Resolver
	layer    *resilience.Layer
	pool     *Pool
	metrics  *metrics.Metrics
	tracer   *tracing.TracingService
	observer Observer
	logger   *logging.Logger
}

// New creates a coordinator. The pool it creates is shared by every Execute call.
func New(config Config, resolver Resolver, layer *resilience.Layer) *Coordinator {
	if layer == nil {
		layer = resilience.NewLayer(resilience.DefaultConfig(), nil)
	}
	return &Coordinator{
		resolver: resolver,
		layer:    layer,
		pool:     NewPool(config.MaxConcurrentAgents),
		tracer:   tracing.NewNoopTracingService(),
		logger:   logging.GetLogger(),
	}
}

// WithMetrics sets the metrics collector
func (c *Coordinator) WithMetrics(m *metrics.Metrics) *Coordinator {
	c.metrics = m
	return c
}

// WithTracing sets the tracing service
func (c *Coordinator) WithTracing(t *tracing.TracingService) *Coordinator {
	if t != nil {
		c.tracer = t
	}
	return c
}

// WithObserver sets the invocation observer
func (c *Coordinator) WithObserver(o Observer) *Coordinator {
	c.observer = o
	return c
}

// Pool returns the shared concurrency bound
func (c *Coordinator) Pool() *Pool {
	return c.pool
}

// Execute runs the plan and returns one AgentResult per capability. It never
// fails: capability failures become unsuccessful results, and an unexpected
// error in the parallel path triggers a sequential replay.
func (c *Coordinator) Execute(ctx context.Context, plan Plan) types.ExecutionResult {
	if !plan.Parallel {
		return c.executeSequential(ctx, plan, types.ExecutionSequential)
	}

	result, err := c.executeParallel(ctx, plan)
	if err != nil {
		c.logger.Warn("Parallel execution failed, falling back to sequential",
			"request_id", plan.Request.ID,
			"error", err.Error(),
		)
		c.metrics.RecordError("coordinator", "parallel_fallback")
		return c.executeSequential(ctx, plan, types.ExecutionSequentialFallback)
	}
	return result
}

func (c *Coordinator) executeSequential(ctx context.Context, plan Plan, executionType types.ExecutionType) types.ExecutionResult {
	upstream := make(map[string]*types.CapabilityOutput)
	results := make([]types.AgentResult, 0, len(plan.Template.Capabilities))
	var total time.Duration

	for _, step := range plan.Template.Capabilities {
		res, elapsed := c.invoke(ctx, plan, step, upstream)
		total += elapsed
		results = append(results, res)
		if res.Success {
			upstream[step.Name] = res.Output
		}
	}

	return types.ExecutionResult{
		Results:            results,
		TotalExecutionTime: total,
		ExecutionType:      executionType,
		Groups:             len(plan.Template.Capabilities),
	}
}

func (c *Coordinator) executeParallel(ctx context.Context, plan Plan) (result types.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(fmt.Sprintf("parallel execution panicked: %v", r))
		}
	}()

	groups := workflow.Groups(plan.Template)
	upstream := make(map[string]*types.CapabilityOutput)
	results := make([]types.AgentResult, 0, len(plan.Template.Capabilities))
	var total time.Duration

	for _, group := range groups {
		groupResults := make([]types.AgentResult, len(group))
		durations := make([]time.Duration, len(group))

		g, gctx := errgroup.WithContext(ctx)
		for i, step := range group {
			i, step := i, step
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = errors.NewInternalError(fmt.Sprintf("capability group panicked: %v", r))
					}
				}()
				groupResults[i], durations[i] = c.invoke(gctx, plan, step, upstream)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return types.ExecutionResult{}, err
		}

		var slowest time.Duration
		for i, res := range groupResults {
			if durations[i] > slowest {
				slowest = durations[i]
			}
			results = append(results, res)
		}
		total += slowest

		// outputs become visible to later groups only
		for _, res := range groupResults {
			if res.Success {
				upstream[res.Capability] = res.Output
			}
		}
	}

	return types.ExecutionResult{
		Results:            results,
		TotalExecutionTime: total,
		ExecutionType:      types.ExecutionParallel,
		Groups:             len(groups),
	}, nil
}

func (c *Coordinator) invoke(ctx context.Context, plan Plan, step types.CapabilityPlan, upstream map[string]*types.CapabilityOutput) (types.AgentResult, time.Duration) {
	start := time.Now()
	result := c.run(ctx, plan, step, upstream)
	elapsed := time.Since(start)
	result.ExecutionTimeMs = elapsed.Milliseconds()

	status := "success"
	if !result.Success {
		status = string(result.ErrorKind)
	}
	c.metrics.RecordCapabilityInvocation(step.Name, status, elapsed)

	logFields := map[string]interface{}{
		"request_id": plan.Request.ID,
		"attempts":   result.Attempts,
	}
	if !result.Success {
		logFields["error_kind"] = result.ErrorKind
		logFields["error"] = result.Error
	}
	c.logger.LogCapabilityEvent(ctx, step.Name, result.Success, elapsed, logFields)

	c.notify(ctx, plan.Request.ID, result)
	return result, elapsed
}

func (c *Coordinator) notify(ctx context.Context, requestID string, result types.AgentResult) {
	if c.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Capability observer panicked", "capability", result.Capability, "panic", fmt.Sprint(r))
		}
	}()
	c.observer.CapabilityCompleted(ctx, requestID, result)
}

// run holds a pool slot for the duration of one layer call. Each attempt is
// raced against the step timeout inside the layer, so a capability that
// ignores its context releases the slot when the attempt is abandoned.
func (c *Coordinator) run(ctx context.Context, plan Plan, step types.CapabilityPlan, upstream map[string]*types.CapabilityOutput) types.AgentResult {
	result := types.AgentResult{Capability: step.Name}

	if c.resolver == nil {
		return failed(result, errors.NewNotFoundError(fmt.Sprintf("capability %s", step.Name)))
	}
	impl, err := c.resolver.Get(step.Name)
	if err != nil {
		return failed(result, err)
	}

	spanCtx, span := c.tracer.StartCapabilitySpan(ctx, step.Name, step.Priority)
	defer span.End()

	timeout := step.Timeout()
	if timeout <= 0 {
		timeout = workflow.DefaultTimeout
	}

	input := types.CapabilityInput{
		RequestID:  plan.Request.ID,
		Message:    plan.Request.Message,
		Context:    plan.Request.Context,
		Complexity: plan.Complexity,
		Upstream:   copyUpstream(upstream),
	}

	// abandoned attempts must not publish their output
	var mu sync.Mutex
	var output *types.CapabilityOutput
	op := func(ctx context.Context) error {
		out, err := impl.Invoke(ctx, input)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if out == nil {
			out = &types.CapabilityOutput{}
		}
		output = out
		return nil
	}

	err = c.pool.Run(spanCtx, func() error {
		var err error
		result.Attempts, err = c.layer.ExecuteWithTimeout(spanCtx, step.Name, timeout, op)
		return err
	})
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			err = errors.NewTimeoutError(fmt.Sprintf("capability %s", step.Name)).WithCause(err)
		}
		c.tracer.RecordError(span, err)
		return failed(result, err)
	}

	mu.Lock()
	defer mu.Unlock()
	result.Success = true
	result.Output = output
	return result
}

func failed(result types.AgentResult, err error) types.AgentResult {
	result.Success = false
	result.Output = nil
	result.ErrorKind = resilience.Classify(err)
	result.Error = err.Error()
	return result
}

func copyUpstream(upstream map[string]*types.CapabilityOutput) map[string]*types.CapabilityOutput {
	if len(upstream) == 0 {
		return nil
	}
	out := make(map[string]*types.CapabilityOutput, len(upstream))
	for name, output := range upstream {
		out[name] = output
	}
	return out
}
