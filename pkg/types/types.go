package types

import (
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
)

// Level is the complexity tier a request falls into
type Level string

const (
	LevelSimple     Level = "simple"
	LevelModerate   Level = "moderate"
	LevelComplex    Level = "complex"
	LevelEnterprise Level = "enterprise"
)

// Levels lists every level from least to most complex
var Levels = []Level{LevelSimple, LevelModerate, LevelComplex, LevelEnterprise}

// Valid reports whether l is a known level
func (l Level) Valid() bool {
	for _, known := range Levels {
		if l == known {
			return true
		}
	}
	return false
}

// RequestContext carries the structured fields that accompany a request message
type RequestContext struct {
	TenantID        string            `json:"tenant_id,omitempty"`
	Tool            string            `json:"tool,omitempty"`
	Clients         []string          `json:"clients,omitempty"`
	Industry        string            `json:"industry,omitempty"`
	Deadline        *time.Time        `json:"deadline,omitempty"`
	DataSensitivity []string          `json:"data_sensitivity,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Request is an inbound decision request; it is not mutated after it is received
type Request struct {
	ID         string         `json:"id,omitempty"`
	Message    string         `json:"message"`
	Context    RequestContext `json:"context"`
	ReceivedAt time.Time      `json:"received_at,omitempty"`
}

// ComplexityScore is the analyzer's verdict for one request
type ComplexityScore struct {
	Level            Level              `json:"level"`
	Score            float64            `json:"score"`
	Factors          map[string]float64 `json:"factors"`
	ParallelEligible bool               `json:"parallel_eligible"`
}

// CapabilityPlan is one step of a workflow template
type CapabilityPlan struct {
	Name             string `json:"name" yaml:"name"`
	Priority         int    `json:"priority" yaml:"priority"`
	TimeoutMs        int    `json:"timeout_ms" yaml:"timeout_ms"`
	ParallelEligible bool   `json:"parallel_eligible" yaml:"parallel_eligible"`
}

// Timeout returns the plan's invocation timeout
func (p CapabilityPlan) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// WorkflowTemplate is the ordered capability plan for a complexity level
type WorkflowTemplate struct {
	Level        Level            `json:"level" yaml:"level"`
	Capabilities []CapabilityPlan `json:"capabilities" yaml:"capabilities"`
}

// Names returns the capability names in template order
func (t WorkflowTemplate) Names() []string {
	names := make([]string, len(t.Capabilities))
	for i, p := range t.Capabilities {
		names[i] = p.Name
	}
	return names
}

// PolicyDecision is the verdict a capability may report
type PolicyDecision string

const (
	PolicyApproved    PolicyDecision = "approved"
	PolicyConditional PolicyDecision = "conditional"
	PolicyRejected    PolicyDecision = "rejected"
)

// CapabilityInput is what a capability receives for one invocation
type CapabilityInput struct {
	RequestID  string                       `json:"request_id"`
	Message    string                       `json:"message"`
	Context    RequestContext               `json:"context"`
	Complexity ComplexityScore              `json:"complexity"`
	Upstream   map[string]*CapabilityOutput `json:"upstream,omitempty"`
}

// CapabilityOutput is what a capability reports back; Confidence is nil when not reported
type CapabilityOutput struct {
	Decision        PolicyDecision         `json:"decision,omitempty" yaml:"decision"`
	Confidence      *float64               `json:"confidence,omitempty" yaml:"confidence"`
	Recommendations []string               `json:"recommendations,omitempty" yaml:"recommendations"`
	RiskFactors     []string               `json:"risk_factors,omitempty" yaml:"risk_factors"`
	Summary         string                 `json:"summary,omitempty" yaml:"summary"`
	Payload         map[string]interface{} `json:"payload,omitempty" yaml:"payload"`
}

// AgentResult is the outcome of one capability invocation within a request
type AgentResult struct {
	Capability      string            `json:"capability"`
	Success         bool              `json:"success"`
	Output          *CapabilityOutput `json:"output,omitempty"`
	ErrorKind       errors.ErrorType  `json:"error_kind,omitempty"`
	Error           string            `json:"error,omitempty"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	Attempts        int               `json:"attempts"`
}

// ExecutionType records how a template was run
type ExecutionType string

const (
	ExecutionSequential         ExecutionType = "sequential"
	ExecutionParallel           ExecutionType = "parallel"
	ExecutionSequentialFallback ExecutionType = "sequential_fallback"
	ExecutionCached             ExecutionType = "cached"
)

// ExecutionResult aggregates every AgentResult of one request
type ExecutionResult struct {
	Results            []AgentResult `json:"results"`
	TotalExecutionTime time.Duration `json:"total_execution_time"`
	ExecutionType      ExecutionType `json:"execution_type"`
	Groups             int           `json:"groups"`
}

// Failures counts unsuccessful results
func (r ExecutionResult) Failures() int {
	n := 0
	for _, res := range r.Results {
		if !res.Success {
			n++
		}
	}
	return n
}

// DecisionStatus is the overall outcome of orchestration
type DecisionStatus string

const (
	StatusApproved            DecisionStatus = "approved"
	StatusConditionalApproval DecisionStatus = "conditional_approval"
	StatusRejected            DecisionStatus = "rejected"
	StatusRequiresHumanReview DecisionStatus = "requires_human_review"
	StatusError               DecisionStatus = "error"
)

// CapabilityDecision is the per-capability view exposed on a Decision
type CapabilityDecision struct {
	Success    bool             `json:"success"`
	Decision   PolicyDecision   `json:"decision,omitempty"`
	Confidence float64          `json:"confidence"`
	Summary    string           `json:"summary,omitempty"`
	ErrorKind  errors.ErrorType `json:"error_kind,omitempty"`
}

// Decision is the single governance verdict produced for a request
type Decision struct {
	RequestID                 string                        `json:"request_id"`
	Status                    DecisionStatus                `json:"status"`
	Confidence                float64                       `json:"confidence"`
	PerCapabilityDecisions    map[string]CapabilityDecision `json:"per_capability_decisions"`
	Recommendations           []string                      `json:"recommendations"`
	RiskFactors               []string                      `json:"risk_factors"`
	Rationale                 string                        `json:"rationale"`
	UserMessage               string                        `json:"user_message,omitempty"`
	Complexity                *ComplexityScore              `json:"complexity,omitempty"`
	ExecutionType             ExecutionType                 `json:"execution_type,omitempty"`
	CapabilitiesInvoked       []string                      `json:"capabilities_invoked,omitempty"`
	ProcessingTimeMs          int64                         `json:"processing_time_ms"`
	EstimatedProcessingTimeMs int64                         `json:"estimated_processing_time_ms,omitempty"`
	Cached                    bool                          `json:"cached"`
	Error                     string                        `json:"error,omitempty"`
	Timestamp                 time.Time                     `json:"timestamp"`
}

// BreakerState is a circuit breaker state name
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreakerState is a snapshot of one capability's breaker
type CircuitBreakerState struct {
	State         BreakerState `json:"state"`
	FailureCount  int          `json:"failure_count"`
	NextAttemptAt time.Time    `json:"next_attempt_at,omitempty"`
	HalfOpenCalls int          `json:"half_open_calls"`
}
