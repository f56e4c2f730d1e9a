package capabilities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Rule matches a request and contributes to the capability's verdict
type Rule struct {
	Name string `yaml:"name"`
	// Terms match case-insensitively anywhere in the message
	Terms []string `yaml:"terms"`
	// Industries and Tools match the structured context exactly
	Industries      []string             `yaml:"industries"`
	Tools           []string             `yaml:"tools"`
	MinLevel        types.Level          `yaml:"min_level"`
	Decision        types.PolicyDecision `yaml:"decision"`
	Confidence      *float64             `yaml:"confidence"`
	Recommendations []string             `yaml:"recommendations"`
	RiskFactors     []string             `yaml:"risk_factors"`
}

// RulesConfig describes a capability answered from static rules
type RulesConfig struct {
	Name    string                 `yaml:"name"`
	Default types.CapabilityOutput `yaml:"default"`
	Rules   []Rule                 `yaml:"rules"`
	// Delay simulates processing time
	Delay time.Duration `yaml:"delay"`
	// Fail makes every invocation fail with the named error kind
	Fail errors.ErrorType `yaml:"fail"`
}

// RulesCapability evaluates an ordered list of rules against each request.
// Every matching rule adds its recommendations and risk factors; the most
// restrictive decision among matches wins and brings its confidence.
type RulesCapability struct {
	config RulesConfig
}

// NewRulesCapability validates config and creates the capability
func NewRulesCapability(config RulesConfig) (*RulesCapability, error) {
	if config.Name == "" {
		return nil, errors.NewValidationError("rules capability name is required")
	}
	if config.Default.Decision != "" && severity(config.Default.Decision) < 0 {
		return nil, errors.NewValidationError(fmt.Sprintf("capability %s has unknown default decision %q", config.Name, config.Default.Decision))
	}
	for i, rule := range config.Rules {
		if len(rule.Terms) == 0 && len(rule.Industries) == 0 && len(rule.Tools) == 0 {
			return nil, errors.NewValidationError(fmt.Sprintf("rule %d of capability %s matches nothing", i, config.Name))
		}
		if rule.Decision != "" && severity(rule.Decision) < 0 {
			return nil, errors.NewValidationError(fmt.Sprintf("rule %d of capability %s has unknown decision %q", i, config.Name, rule.Decision))
		}
		if rule.MinLevel != "" && !rule.MinLevel.Valid() {
			return nil, errors.NewValidationError(fmt.Sprintf("rule %d of capability %s has unknown level %q", i, config.Name, rule.MinLevel))
		}
	}
	if config.Fail != "" {
		config.Fail = errors.ErrorType(strings.ToUpper(string(config.Fail)))
	}
	return &RulesCapability{config: config}, nil
}

// Name implements capability.Capability
func (r *RulesCapability) Name() string {
	return r.config.Name
}

// Invoke implements capability.Capability
func (r *RulesCapability) Invoke(ctx context.Context, input types.CapabilityInput) (*types.CapabilityOutput, error) {
	if r.config.Delay > 0 {
		timer := time.NewTimer(r.config.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, errors.NewCapabilityError(r.config.Name, errors.ErrorTypeTimeout, "capability cancelled").WithCause(ctx.Err())
		}
	}
	if r.config.Fail != "" {
		return nil, errors.NewCapabilityError(r.config.Name, r.config.Fail, "configured failure")
	}

	def := r.config.Default
	output := &types.CapabilityOutput{
		Decision:        def.Decision,
		Confidence:      def.Confidence,
		Recommendations: append([]string(nil), def.Recommendations...),
		RiskFactors:     append([]string(nil), def.RiskFactors...),
	}

	message := strings.ToLower(input.Message)
	var matched []string
	winner := -1
	for _, rule := range r.config.Rules {
		if !rule.matches(message, input) {
			continue
		}
		matched = append(matched, rule.Name)
		output.Recommendations = append(output.Recommendations, rule.Recommendations...)
		output.RiskFactors = append(output.RiskFactors, rule.RiskFactors...)

		if rule.Decision != "" && severity(rule.Decision) > winner {
			winner = severity(rule.Decision)
			output.Decision = rule.Decision
			if rule.Confidence != nil {
				output.Confidence = rule.Confidence
			}
		}
	}

	if len(matched) == 0 {
		output.Summary = def.Summary
		if output.Summary == "" {
			output.Summary = "no rules matched"
		}
	} else {
		output.Summary = fmt.Sprintf("matched %s", strings.Join(matched, ", "))
	}
	output.Payload = map[string]interface{}{"matched_rules": matched}
	return output, nil
}

func (rule Rule) matches(message string, input types.CapabilityInput) bool {
	if rule.MinLevel != "" && levelRank(input.Complexity.Level) < levelRank(rule.MinLevel) {
		return false
	}
	for _, term := range rule.Terms {
		if term != "" && strings.Contains(message, strings.ToLower(term)) {
			return true
		}
	}
	for _, industry := range rule.Industries {
		if strings.EqualFold(industry, input.Context.Industry) {
			return true
		}
	}
	for _, tool := range rule.Tools {
		if strings.EqualFold(tool, input.Context.Tool) {
			return true
		}
	}
	return false
}

func severity(d types.PolicyDecision) int {
	switch d {
	case types.PolicyApproved:
		return 0
	case types.PolicyConditional:
		return 1
	case types.PolicyRejected:
		return 2
	default:
		return -1
	}
}

func levelRank(level types.Level) int {
	for i, l := range types.Levels {
		if l == level {
			return i
		}
	}
	return -1
}
