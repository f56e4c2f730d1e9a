package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/NikhilSetiya/governance-orchestrator/internal/cache"
	"github.com/NikhilSetiya/governance-orchestrator/internal/complexity"
	"github.com/NikhilSetiya/governance-orchestrator/internal/coordinator"
	"github.com/NikhilSetiya/governance-orchestrator/internal/events"
	"github.com/NikhilSetiya/governance-orchestrator/internal/synthesis"
	"github.com/NikhilSetiya/governance-orchestrator/internal/workflow"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/resilience"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/tracing"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Orchestrator turns requests into governance decisions. It owns the
// breaker table and the result cache; both live for the lifetime of the
// instance and are shared by concurrent requests.
type Orchestrator struct {
	config      Config
	registry    *capability.Registry
	analyzer    complexity.Analyzer
	selector    *workflow.Selector
	layer       *resilience.Layer
	coordinator *coordinator.Coordinator
	synthesizer *synthesis.Synthesizer
	cache       *cache.Service
	events      *events.Dispatcher
	metrics     *metrics.Metrics
	tracer      *tracing.TracingService
	history     *history
	logger      *logging.Logger
	now         func() time.Time
	startTime   time.Time

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	watcher *workflow.Watcher
}

// New wires an orchestrator from config and deps. It fails only when the
// configured template file cannot be loaded.
func New(config Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Registry == nil {
		deps.Registry = capability.NewRegistry()
	}
	if deps.Tracing == nil {
		deps.Tracing = tracing.NewNoopTracingService()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Analyzer == nil {
		deps.Analyzer = complexity.NewKeywordAnalyzer(config.Analyzer).WithClock(deps.Now)
	}

	selector, err := workflow.NewSelector(nil)
	if err != nil {
		return nil, err
	}
	if config.TemplatesFile != "" {
		if err := selector.Reload(config.TemplatesFile); err != nil {
			return nil, err
		}
	}

	// a nil dispatcher still satisfies the observer interfaces
	layer := resilience.NewLayer(config.Resilience, deps.Events)
	coord := coordinator.New(config.Coordinator, deps.Registry, layer).
		WithMetrics(deps.Metrics).
		WithTracing(deps.Tracing).
		WithObserver(deps.Events)

	o := &Orchestrator{
		config:      config,
		registry:    deps.Registry,
		analyzer:    deps.Analyzer,
		selector:    selector,
		layer:       layer,
		coordinator: coord,
		synthesizer: synthesis.New(config.Synthesis),
		events:      deps.Events,
		metrics:     deps.Metrics,
		tracer:      deps.Tracing,
		history:     newHistory(config.HistorySize),
		logger:      logging.GetLogger(),
		now:         deps.Now,
		startTime:   deps.Now(),
	}

	if config.CacheEnabled {
		cacheConfig := config.Cache
		if cacheConfig == nil {
			cacheConfig = cache.DefaultConfig()
		}
		if cacheConfig.Now == nil {
			cacheConfig.Now = deps.Now
		}
		o.cache = cache.NewService(cacheConfig, deps.Redis, deps.Metrics)
	}

	return o, nil
}

// RegisterCapability adds a capability to the registry
func (o *Orchestrator) RegisterCapability(c capability.Capability) error {
	if err := o.registry.Register(c); err != nil {
		return err
	}
	o.logger.Info("Capability registered", "capability", c.Name())
	return nil
}

// Capabilities lists the registered capability names
func (o *Orchestrator) Capabilities() []string {
	return o.registry.Names()
}

// Analyze scores a request without running it
func (o *Orchestrator) Analyze(req *types.Request) types.ComplexityScore {
	return o.analyzer.Analyze(req)
}

// Selector returns the workflow selector
func (o *Orchestrator) Selector() *workflow.Selector {
	return o.selector
}

// Orchestrate produces the decision for req. It never panics and never
// fails: malformed requests and internal faults yield status error.
func (o *Orchestrator) Orchestrate(ctx context.Context, req *types.Request) (decision *types.Decision) {
	start := o.now()
	requestID := ""
	if req != nil {
		requestID = req.ID
	}
	if requestID == "" {
		requestID = newRequestID(start)
	}

	var record PerformanceRecord
	defer func() {
		if r := recover(); r != nil {
			err := errors.NewInternalError(fmt.Sprintf("orchestration failed: %v", r))
			o.logger.LogError(ctx, err, "Orchestration panicked", map[string]interface{}{
				"request_id": requestID,
				"panic":      fmt.Sprint(r),
			})
			o.metrics.RecordError("orchestrator", "panic")
			decision = o.errorDecision(requestID, start, err)
			record = PerformanceRecord{}
		}
		o.finish(ctx, decision, record, start)
	}()

	if err := validate(req); err != nil {
		return o.errorDecision(requestID, start, err)
	}

	// the caller's request is never mutated
	r := *req
	r.ID = requestID
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = start
	}

	ctx = logging.WithRequestID(ctx, requestID)
	if r.Context.TenantID != "" {
		ctx = logging.WithTenantID(ctx, r.Context.TenantID)
	}
	ctx, span := o.tracer.StartOrchestrationSpan(ctx, requestID, r.Context.TenantID)
	defer span.End()

	var key string
	if o.cache != nil {
		key = cache.Fingerprint(&r).String()
		if cached, ok := o.lookup(ctx, requestID, key); ok {
			cached.RequestID = requestID
			cached.Cached = true
			cached.ExecutionType = types.ExecutionCached
			cached.ProcessingTimeMs = o.now().Sub(start).Milliseconds()
			record.Cached = true
			if cached.Complexity != nil {
				record.Level = cached.Complexity.Level
				record.Score = cached.Complexity.Score
			}
			record.ExecutionType = types.ExecutionCached
			return cached
		}
	}

	score := o.analyzer.Analyze(&r)
	template := o.selector.Select(score)

	o.logger.Debug("Workflow selected",
		"request_id", requestID,
		"level", string(score.Level),
		"score", score.Score,
		"capabilities", template.Names(),
		"parallel", score.ParallelEligible,
	)

	execution := o.coordinator.Execute(ctx, coordinator.Plan{
		Request:    &r,
		Complexity: score,
		Template:   template,
		Parallel:   score.ParallelEligible,
	})

	decision = o.synthesizer.Synthesize(execution, score)
	decision.RequestID = requestID
	decision.EstimatedProcessingTimeMs = complexity.EstimatedProcessingTime(score.Score).Milliseconds()
	decision.ProcessingTimeMs = o.now().Sub(start).Milliseconds()

	record.Level = score.Level
	record.Score = score.Score
	record.ExecutionType = execution.ExecutionType
	record.Capabilities = len(execution.Results)
	record.Failures = execution.Failures()

	if o.cache != nil && record.Failures == 0 {
		if err := o.cache.Set(ctx, key, decision, 0); err != nil {
			o.logger.Warn("Failed to cache decision", "request_id", requestID, "error", err.Error())
		}
	}

	return decision
}

func (o *Orchestrator) lookup(ctx context.Context, requestID, key string) (*types.Decision, bool) {
	_, span := o.tracer.StartCacheSpan(ctx, "get", key)
	defer span.End()

	var cached types.Decision
	err := o.cache.Get(ctx, key, &cached)
	o.events.CacheLookup(requestID, key, err == nil)
	if err != nil {
		if !errors.IsNotFound(err) {
			o.tracer.RecordError(span, err)
			o.logger.Warn("Cache lookup failed", "request_id", requestID, "error", err.Error())
		}
		return nil, false
	}
	return &cached, true
}

func (o *Orchestrator) finish(ctx context.Context, decision *types.Decision, record PerformanceRecord, start time.Time) {
	if decision == nil {
		return
	}
	elapsed := o.now().Sub(start)

	record.RequestID = decision.RequestID
	record.Status = decision.Status
	record.Cached = decision.Cached
	record.ProcessingTime = elapsed
	record.Timestamp = start
	o.history.add(record)

	o.metrics.RecordOrchestration(string(decision.Status), string(record.Level), decision.Cached, record.Score, elapsed)
	o.events.OrchestrationCompleted(decision)

	o.logger.LogPerformanceEvent(ctx, "orchestrate", elapsed, map[string]interface{}{
		"request_id": decision.RequestID,
		"status":     string(decision.Status),
		"confidence": decision.Confidence,
		"cached":     decision.Cached,
		"level":      string(record.Level),
	})
}

func (o *Orchestrator) errorDecision(requestID string, start time.Time, err error) *types.Decision {
	return &types.Decision{
		RequestID:              requestID,
		Status:                 types.StatusError,
		Confidence:             0,
		PerCapabilityDecisions: map[string]types.CapabilityDecision{},
		Recommendations:        []string{},
		RiskFactors:            []string{},
		Rationale:              "Request could not be processed",
		UserMessage:            "Request could not be processed - human review recommended",
		ProcessingTimeMs:       o.now().Sub(start).Milliseconds(),
		Error:                  err.Error(),
		Timestamp:              o.now(),
	}
}

func validate(req *types.Request) error {
	if req == nil {
		return errors.NewValidationError("request is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return errors.NewValidationError("request message is required")
	}
	return nil
}

// newRequestID returns orch_<unix ms>_<random>
func newRequestID(now time.Time) string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("orch_%d_%d", now.UnixMilli(), now.UnixNano()%1e9)
	}
	return fmt.Sprintf("orch_%d_%s", now.UnixMilli(), hex.EncodeToString(buf))
}

// Stats reports request history, capability counters, cache and events
func (o *Orchestrator) Stats() Stats {
	stats := Stats{
		Requests:     o.history.stats(),
		Capabilities: o.layer.Stats(),
		Uptime:       o.now().Sub(o.startTime),
	}
	if o.cache != nil {
		cs := o.cache.Stats()
		stats.Cache = &cs
	}
	if o.events != nil {
		stats.Events.Emitted, stats.Events.Dropped, stats.Events.Failed = o.events.Stats()
	}
	return stats
}

// History returns up to n recent performance records, newest first
func (o *Orchestrator) History(n int) []PerformanceRecord {
	return o.history.recent(n)
}

// Health checks capabilities, breakers and the cache
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:       HealthHealthy,
		Capabilities: o.registry.HealthCheckAll(ctx),
		Breakers:     o.layer.Health(),
		Cache:        CacheHealth{Enabled: o.cache != nil},
		CheckedAt:    o.now(),
	}

	o.mu.Lock()
	report.Running = o.running
	o.mu.Unlock()

	degraded := !report.Breakers.Healthy
	for _, h := range report.Capabilities {
		if h.Status == capability.StatusUnhealthy {
			degraded = true
		}
	}

	if o.cache != nil {
		cs := o.cache.Stats()
		report.Cache.DistributedEnabled = cs.DistributedEnabled
		if err := o.cache.Health(ctx); err != nil {
			report.Cache.Error = err.Error()
			degraded = true
		}
		report.Cache.DistributedAvailable = o.cache.Stats().DistributedAvailable
	}

	switch {
	case report.Breakers.Degradation() == resilience.LevelCritical:
		report.Status = HealthUnhealthy
	case degraded:
		report.Status = HealthDegraded
	}
	return report
}

// ResetCircuitBreakers closes every breaker and returns their names
func (o *Orchestrator) ResetCircuitBreakers() []string {
	names := o.layer.ResetAll()
	o.logger.Info("Circuit breakers reset", "capabilities", names)
	return names
}

// ResetCircuitBreaker closes one breaker; it reports whether it existed
func (o *Orchestrator) ResetCircuitBreaker(name string) bool {
	return o.layer.Reset(name)
}

// InvalidateCache removes cached decisions whose key matches pattern
func (o *Orchestrator) InvalidateCache(ctx context.Context, pattern string) (int, error) {
	if o.cache == nil {
		return 0, nil
	}
	if strings.TrimSpace(pattern) == "" {
		return 0, errors.NewValidationError("cache pattern is required")
	}
	return o.cache.InvalidatePattern(ctx, pattern)
}

// InvalidateTenant removes every cached decision of a tenant
func (o *Orchestrator) InvalidateTenant(ctx context.Context, tenant string) (int, error) {
	return o.InvalidateCache(ctx, cache.TenantPattern(tenant))
}

// ClearCache empties both cache tiers
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Clear(ctx)
}

// Start launches the maintenance schedule, the template watcher and the
// event dispatcher
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return errors.NewValidationError("orchestrator is already running")
	}

	c := cron.New()
	if o.cache != nil {
		interval := o.cache.Config().CleanupInterval
		if interval <= 0 {
			interval = cache.DefaultConfig().CleanupInterval
		}
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), o.sweepCache); err != nil {
			return errors.NewValidationError("invalid cache cleanup interval").WithCause(err)
		}
	}
	if o.config.StatsSchedule != "" {
		if _, err := c.AddFunc(o.config.StatsSchedule, o.logStats); err != nil {
			return errors.NewValidationError(fmt.Sprintf("invalid stats schedule %q", o.config.StatsSchedule)).WithCause(err)
		}
	}

	if o.config.WatchTemplates && o.config.TemplatesFile != "" {
		w, err := workflow.NewWatcher(o.config.TemplatesFile, workflow.DefaultDebounceInterval, o.selector)
		if err != nil {
			return err
		}
		o.watcher = w
		go func() {
			if err := w.Watch(ctx); err != nil {
				o.logger.Error("Template watcher exited", "error", err.Error())
			}
		}()
	}

	if o.events != nil {
		o.events.Start()
	}

	c.Start()
	o.cron = c
	o.running = true

	o.logger.Info("Orchestrator started",
		"capabilities", o.registry.Names(),
		"cache_enabled", o.cache != nil,
		"watch_templates", o.watcher != nil,
	)
	return nil
}

// Stop halts background work, flushes events and closes the cache
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return nil
	}
	o.running = false

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if o.cron != nil {
		select {
		case <-o.cron.Stop().Done():
		case <-ctx.Done():
			keep(ctx.Err())
		}
		o.cron = nil
	}
	if o.watcher != nil {
		keep(o.watcher.Stop())
		o.watcher = nil
	}
	if o.events != nil {
		keep(o.events.Close(ctx))
	}
	if o.cache != nil {
		keep(o.cache.Close())
	}

	o.logger.Info("Orchestrator stopped")
	return firstErr
}

func (o *Orchestrator) sweepCache() {
	if removed := o.cache.Sweep(); removed > 0 {
		o.logger.Debug("Expired cache entries swept", "removed", removed)
	}
}

func (o *Orchestrator) logStats() {
	stats := o.Stats()
	fields := []interface{}{
		"requests", stats.Requests.Total,
		"cache_hit_rate", stats.Requests.CacheHitRate,
		"avg_processing_time_ms", stats.Requests.AvgProcessingTimeMs,
		"success_rate", stats.Requests.SuccessRate,
		"events_dropped", stats.Events.Dropped,
	}
	if health := o.layer.Health(); len(health.Open) > 0 {
		fields = append(fields, "open_breakers", health.Open)
	}
	o.logger.Info("Orchestrator stats", fields...)
}
