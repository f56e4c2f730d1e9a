package synthesis

import (
	"fmt"
	"strings"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Config contains synthesizer configuration
type Config struct {
	// PolicyCapability is the capability whose decision sets the status
	PolicyCapability string `json:"policy_capability"`
	// DefaultConfidence is assumed for a successful capability that reports none
	DefaultConfidence float64 `json:"default_confidence"`
	// FailurePenalty is subtracted from the confidence once per failed capability
	FailurePenalty float64 `json:"failure_penalty"`
	// HighConfidence and ModerateConfidence pick the user message wording
	HighConfidence     float64 `json:"high_confidence"`
	ModerateConfidence float64 `json:"moderate_confidence"`
	// MessageRecommendations is how many recommendations the user message quotes
	MessageRecommendations int `json:"message_recommendations"`
}

// DefaultConfig returns default synthesizer configuration
func DefaultConfig() Config {
	return Config{
		PolicyCapability:       "policy",
		DefaultConfidence:      0.5,
		FailurePenalty:         0.1,
		HighConfidence:         0.8,
		ModerateConfidence:     0.6,
		MessageRecommendations: 2,
	}
}

// Synthesizer reduces the outcomes of one execution into a single Decision
type Synthesizer struct {
	config Config
	now    func() time.Time
}

// New creates a synthesizer; zero fields fall back to the defaults
func New(config Config) *Synthesizer {
	defaults := DefaultConfig()
	if config.PolicyCapability == "" {
		config.PolicyCapability = defaults.PolicyCapability
	}
	if config.DefaultConfidence <= 0 {
		config.DefaultConfidence = defaults.DefaultConfidence
	}
	if config.FailurePenalty <= 0 {
		config.FailurePenalty = defaults.FailurePenalty
	}
	if config.HighConfidence <= 0 {
		config.HighConfidence = defaults.HighConfidence
	}
	if config.ModerateConfidence <= 0 {
		config.ModerateConfidence = defaults.ModerateConfidence
	}
	if config.MessageRecommendations <= 0 {
		config.MessageRecommendations = defaults.MessageRecommendations
	}
	return &Synthesizer{config: config, now: time.Now}
}

// Config returns the synthesizer configuration
func (s *Synthesizer) Config() Config {
	return s.config
}

// Synthesize builds the Decision for an execution. RequestID and timing
// fields are left for the caller.
func (s *Synthesizer) Synthesize(execution types.ExecutionResult, score types.ComplexityScore) *types.Decision {
	var (
		successful []string
		failed     []string
		summaries  []string
		recs       = newOrderedSet()
		risks      = newOrderedSet()
		perCap     = make(map[string]types.CapabilityDecision, len(execution.Results))
		invoked    = make([]string, 0, len(execution.Results))
		total      float64
	)

	for _, res := range execution.Results {
		invoked = append(invoked, res.Capability)

		if !res.Success {
			failed = append(failed, res.Capability)
			perCap[res.Capability] = types.CapabilityDecision{
				Success:   false,
				ErrorKind: res.ErrorKind,
			}
			continue
		}

		successful = append(successful, res.Capability)
		confidence := s.config.DefaultConfidence
		decision := types.CapabilityDecision{Success: true}

		if out := res.Output; out != nil {
			if out.Confidence != nil {
				confidence = clamp(*out.Confidence)
			}
			decision.Decision = out.Decision
			decision.Summary = out.Summary
			recs.add(out.Recommendations...)
			risks.add(out.RiskFactors...)
			if out.Summary != "" {
				summaries = append(summaries, fmt.Sprintf("%s: %s", res.Capability, out.Summary))
			}
		}

		decision.Confidence = confidence
		perCap[res.Capability] = decision
		total += confidence
	}

	policy := s.policyDecision(execution.Results)

	d := &types.Decision{
		Status:                 s.status(len(failed), policy),
		Confidence:             s.confidence(total, len(successful), len(failed)),
		PerCapabilityDecisions: perCap,
		Recommendations:        recs.items(),
		RiskFactors:            risks.items(),
		ExecutionType:          execution.ExecutionType,
		CapabilitiesInvoked:    invoked,
		Timestamp:              s.now(),
	}
	complexity := score
	d.Complexity = &complexity
	d.Rationale = rationale(successful, failed, summaries, policy)
	d.UserMessage = s.userMessage(d)
	return d
}

// Confidence returns the combined confidence for the given successful
// confidences and failure count
func (s *Synthesizer) Confidence(successes []float64, failures int) float64 {
	var total float64
	for _, c := range successes {
		total += clamp(c)
	}
	return s.confidence(total, len(successes), failures)
}

func (s *Synthesizer) confidence(total float64, successes, failures int) float64 {
	if successes == 0 {
		return 0
	}
	avg := total / float64(successes)
	// penalty first, clamp second
	return clamp(avg - s.config.FailurePenalty*float64(failures))
}

func (s *Synthesizer) status(failures int, policy types.PolicyDecision) types.DecisionStatus {
	if failures > 0 {
		return types.StatusRequiresHumanReview
	}
	switch policy {
	case types.PolicyRejected:
		return types.StatusRejected
	case types.PolicyConditional:
		return types.StatusConditionalApproval
	case types.PolicyApproved:
		return types.StatusApproved
	default:
		return types.StatusRequiresHumanReview
	}
}

func (s *Synthesizer) policyDecision(results []types.AgentResult) types.PolicyDecision {
	for _, res := range results {
		if res.Capability == s.config.PolicyCapability && res.Success && res.Output != nil {
			return res.Output.Decision
		}
	}
	return ""
}

func (s *Synthesizer) userMessage(d *types.Decision) string {
	var b strings.Builder
	b.WriteString("Request ")
	b.WriteString(strings.ReplaceAll(string(d.Status), "_", " "))

	switch {
	case d.Confidence >= s.config.HighConfidence:
		b.WriteString(" with high confidence")
	case d.Confidence >= s.config.ModerateConfidence:
		b.WriteString(" with moderate confidence")
	default:
		b.WriteString(" - human review recommended")
	}

	if len(d.Recommendations) > 0 {
		n := s.config.MessageRecommendations
		if n > len(d.Recommendations) {
			n = len(d.Recommendations)
		}
		b.WriteString(". Key recommendations: ")
		b.WriteString(strings.Join(d.Recommendations[:n], ", "))
	}
	return b.String()
}

func rationale(successful, failed, summaries []string, policy types.PolicyDecision) string {
	var parts []string
	if len(successful) > 0 {
		parts = append(parts, fmt.Sprintf("Analysis completed by %d agents: %s", len(successful), strings.Join(successful, ", ")))
	}
	parts = append(parts, summaries...)
	if len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("Agent failures requiring human review: %s", strings.Join(failed, ", ")))
	}
	if policy != "" {
		parts = append(parts, fmt.Sprintf("Policy evaluation: %s", policy))
	}
	if len(parts) == 0 {
		return "No capabilities were executed"
	}
	return strings.Join(parts, "; ")
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// orderedSet keeps the first occurrence of each non-empty string
type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *orderedSet) items() []string {
	if s.order == nil {
		return []string{}
	}
	return s.order
}
