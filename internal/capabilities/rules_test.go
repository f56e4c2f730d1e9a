package capabilities

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

func policyRules(t *testing.T) *RulesCapability {
	t.Helper()
	c, err := NewRulesCapability(RulesConfig{
		Name: "policy",
		Default: types.CapabilityOutput{
			Decision:   types.PolicyApproved,
			Confidence: capability.Confidence(0.9),
		},
		Rules: []Rule{
			{
				Name:            "health-claims",
				Terms:           []string{"cure", "clinically proven"},
				Decision:        types.PolicyConditional,
				Confidence:      capability.Confidence(0.7),
				Recommendations: []string{"Substantiate health claims"},
				RiskFactors:     []string{"unsubstantiated claim"},
			},
			{
				Name:        "gambling",
				Terms:       []string{"Casino"},
				Decision:    types.PolicyRejected,
				Confidence:  capability.Confidence(0.95),
				RiskFactors: []string{"restricted category"},
			},
			{
				Name:            "generated-imagery",
				Tools:           []string{"midjourney"},
				Recommendations: []string{"Label generated imagery"},
			},
			{
				Name:            "enterprise-review",
				Industries:      []string{"pharmaceutical"},
				MinLevel:        types.LevelComplex,
				Recommendations: []string{"Route to legal"},
			},
		},
	})
	require.NoError(t, err)
	return c
}

func TestRulesCapability_DefaultWhenNothingMatches(t *testing.T) {
	c := policyRules(t)

	output, err := c.Invoke(context.Background(), types.CapabilityInput{Message: "A post about spring"})
	require.NoError(t, err)
	assert.Equal(t, types.PolicyApproved, output.Decision)
	assert.Equal(t, 0.9, *output.Confidence)
	assert.Equal(t, "no rules matched", output.Summary)
	assert.Empty(t, output.RiskFactors)
}

func TestRulesCapability_MostRestrictiveDecisionWins(t *testing.T) {
	c := policyRules(t)

	output, err := c.Invoke(context.Background(), types.CapabilityInput{
		Message: "Our casino bonus will cure boredom",
		Context: types.RequestContext{Tool: "Midjourney"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.PolicyRejected, output.Decision)
	assert.Equal(t, 0.95, *output.Confidence)
	assert.Equal(t, []string{"Substantiate health claims", "Label generated imagery"}, output.Recommendations)
	assert.Equal(t, []string{"unsubstantiated claim", "restricted category"}, output.RiskFactors)
	assert.Equal(t, "matched health-claims, gambling, generated-imagery", output.Summary)
}

func TestRulesCapability_MinLevel(t *testing.T) {
	c := policyRules(t)
	input := types.CapabilityInput{
		Message: "Quarterly update",
		Context: types.RequestContext{Industry: "Pharmaceutical"},
	}

	input.Complexity.Level = types.LevelModerate
	output, err := c.Invoke(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, output.Recommendations)

	input.Complexity.Level = types.LevelEnterprise
	output, err = c.Invoke(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{"Route to legal"}, output.Recommendations)
	assert.Equal(t, types.PolicyApproved, output.Decision)
}

func TestRulesCapability_ConfiguredFailure(t *testing.T) {
	c, err := NewRulesCapability(RulesConfig{Name: "audit", Fail: "server_error"})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), types.CapabilityInput{Message: "x"})
	assert.Equal(t, errors.ErrorTypeServer, errors.GetType(err))
}

func TestRulesCapability_DelayHonoursContext(t *testing.T) {
	c, err := NewRulesCapability(RulesConfig{Name: "negotiation", Delay: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Invoke(ctx, types.CapabilityInput{Message: "x"})
	assert.Equal(t, errors.ErrorTypeTimeout, errors.GetType(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNewRulesCapability_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config RulesConfig
	}{
		{"missing name", RulesConfig{}},
		{"bad default", RulesConfig{Name: "p", Default: types.CapabilityOutput{Decision: "maybe"}}},
		{"empty rule", RulesConfig{Name: "p", Rules: []Rule{{Name: "r"}}}},
		{"bad decision", RulesConfig{Name: "p", Rules: []Rule{{Terms: []string{"x"}, Decision: "perhaps"}}}},
		{"bad level", RulesConfig{Name: "p", Rules: []Rule{{Terms: []string{"x"}, MinLevel: "huge"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRulesCapability(tt.config)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}
