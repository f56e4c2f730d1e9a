package orchestrator

import (
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/internal/cache"
	"github.com/NikhilSetiya/governance-orchestrator/internal/complexity"
	"github.com/NikhilSetiya/governance-orchestrator/internal/coordinator"
	"github.com/NikhilSetiya/governance-orchestrator/internal/events"
	"github.com/NikhilSetiya/governance-orchestrator/internal/synthesis"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/config"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/resilience"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/tracing"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Config contains orchestrator configuration
type Config struct {
	Analyzer    complexity.Config  `json:"analyzer"`
	Coordinator coordinator.Config `json:"coordinator"`
	Resilience  resilience.Config  `json:"-"`
	Synthesis   synthesis.Config   `json:"synthesis"`

	CacheEnabled bool          `json:"cache_enabled"`
	Cache        *cache.Config `json:"cache"`

	// TemplatesFile overrides the default workflow templates when set
	TemplatesFile  string `json:"templates_file"`
	WatchTemplates bool   `json:"watch_templates"`

	HistorySize   int    `json:"history_size"`
	StatsSchedule string `json:"stats_schedule"`
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Analyzer:      complexity.DefaultConfig(),
		Coordinator:   coordinator.DefaultConfig(),
		Resilience:    resilience.DefaultConfig(),
		Synthesis:     synthesis.DefaultConfig(),
		CacheEnabled:  true,
		Cache:         cache.DefaultConfig(),
		HistorySize:   DefaultHistorySize,
		StatsSchedule: "@every 5m",
	}
}

// ConfigFrom maps the environment configuration onto orchestrator settings
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	o := cfg.Orchestration

	c.Analyzer.EnterpriseThreshold = o.EnterpriseThreshold
	c.Analyzer.ComplexThreshold = o.ComplexThreshold
	c.Analyzer.ModerateThreshold = o.ModerateThreshold
	c.Analyzer.ParallelExecution = o.ParallelExecution
	c.Coordinator.MaxConcurrentAgents = o.MaxConcurrentAgents
	c.Synthesis.PolicyCapability = o.PolicyCapability
	c.TemplatesFile = o.TemplatesFile
	c.WatchTemplates = o.WatchTemplates
	c.HistorySize = o.HistorySize
	c.StatsSchedule = o.StatsSchedule

	r := cfg.Resilience
	c.Resilience.Breaker.FailureThreshold = r.FailureThreshold
	c.Resilience.Breaker.RecoveryTimeout = r.RecoveryTimeout
	c.Resilience.Breaker.HalfOpenMaxCalls = r.HalfOpenMaxCalls
	c.Resilience.Retry.MaxAttempts = r.MaxAttempts
	c.Resilience.Retry.BaseDelay = r.BaseDelay
	c.Resilience.Retry.MaxDelay = r.MaxDelay
	c.Resilience.Retry.BackoffMultiplier = r.BackoffMultiplier
	c.Resilience.Retry.Jitter = r.Jitter
	c.Resilience.RateLimit.Window = r.RateLimitWindow
	c.Resilience.RateLimit.MaxRequests = r.RateLimitRequests
	c.Resilience.RateLimit.Overrides = r.RateLimitOverrides

	c.CacheEnabled = cfg.Cache.Enabled
	c.Cache = &cache.Config{
		DefaultTTL:      cfg.Cache.DefaultTTL,
		MaxSize:         cfg.Cache.MaxSize,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Namespace:       cfg.Cache.KeyPrefix,
	}
	return c
}

// Dependencies are the collaborators an Orchestrator is built with; all are optional
type Dependencies struct {
	// Registry holds the capabilities; a new empty one is created when nil
	Registry *capability.Registry
	// Analyzer replaces the keyword analyzer
	Analyzer complexity.Analyzer
	// Redis enables the distributed cache tier
	Redis   cache.RedisStore
	Metrics *metrics.Metrics
	Tracing *tracing.TracingService
	Events  *events.Dispatcher
	// Now overrides the wall clock, mainly for tests
	Now func() time.Time
}

// Stats is a point-in-time view of the orchestrator
type Stats struct {
	Requests     RequestStats                          `json:"requests"`
	Capabilities map[string]resilience.CapabilityStats `json:"capabilities"`
	Cache        *cache.Stats                          `json:"cache,omitempty"`
	Events       EventStats                            `json:"events"`
	Uptime       time.Duration                         `json:"uptime"`
}

// RequestStats summarizes the performance history
type RequestStats struct {
	Total               int                 `json:"total"`
	CacheHits           int                 `json:"cache_hits"`
	CacheHitRate        float64             `json:"cache_hit_rate"`
	AvgProcessingTimeMs float64             `json:"avg_processing_time_ms"`
	ByLevel             map[types.Level]int `json:"by_level"`
	ByStatus            map[string]int      `json:"by_status"`
	SuccessRate         float64             `json:"success_rate"`
}

// EventStats reports dispatcher counters
type EventStats struct {
	Emitted int64 `json:"emitted"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Overall health statuses
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthReport is the orchestrator's view of its dependencies
type HealthReport struct {
	Status       string                       `json:"status"`
	Capabilities map[string]capability.Health `json:"capabilities"`
	Breakers     resilience.HealthReport      `json:"breakers"`
	Cache        CacheHealth                  `json:"cache"`
	Running      bool                         `json:"running"`
	CheckedAt    time.Time                    `json:"checked_at"`
}

// CacheHealth reports the result cache tiers
type CacheHealth struct {
	Enabled              bool   `json:"enabled"`
	DistributedEnabled   bool   `json:"distributed_enabled"`
	DistributedAvailable bool   `json:"distributed_available"`
	Error                string `json:"error,omitempty"`
}
