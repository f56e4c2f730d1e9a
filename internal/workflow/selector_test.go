package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

func TestDefaultTemplates(t *testing.T) {
	selector, err := NewSelector(nil)
	require.NoError(t, err)

	tests := []struct {
		level types.Level
		names []string
	}{
		{types.LevelSimple, []string{"context", "policy"}},
		{types.LevelModerate, []string{"context", "policy", "audit"}},
		{types.LevelComplex, []string{"context", "policy", "audit", "negotiation", "conflict-detection"}},
		{types.LevelEnterprise, []string{"context", "policy", "audit", "negotiation", "conflict-detection", "guardrail-orchestrator", "compliance-scoring"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			template := selector.Select(types.ComplexityScore{Level: tt.level})
			assert.Equal(t, tt.level, template.Level)
			assert.Equal(t, tt.names, template.Names())
		})
	}
}

func TestPlanDefaults(t *testing.T) {
	tests := []struct {
		name      string
		priority  int
		timeoutMs int
	}{
		{"context", 1, 5000},
		{"policy", 2, 10000},
		{"audit", 3, 15000},
		{"negotiation", 4, 20000},
		{"conflict-detection", 5, 10000},
		{"compliance-scoring", 10, 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Plan(tt.name)
			assert.Equal(t, tt.priority, plan.Priority)
			assert.Equal(t, tt.timeoutMs, plan.TimeoutMs)
			assert.True(t, plan.ParallelEligible)
		})
	}
}

func TestSelector_UnknownLevelFallsBackToSimple(t *testing.T) {
	selector, err := NewSelector(nil)
	require.NoError(t, err)

	template := selector.Select(types.ComplexityScore{Level: "galactic"})
	assert.Equal(t, types.LevelSimple, template.Level)
}

func TestSelector_SelectReturnsCopy(t *testing.T) {
	selector, err := NewSelector(nil)
	require.NoError(t, err)

	template := selector.Select(types.ComplexityScore{Level: types.LevelSimple})
	template.Capabilities[0].Name = "mutated"

	again := selector.Select(types.ComplexityScore{Level: types.LevelSimple})
	assert.Equal(t, "context", again.Capabilities[0].Name)
}

func TestGroups(t *testing.T) {
	template := types.WorkflowTemplate{
		Level: types.LevelEnterprise,
		Capabilities: []types.CapabilityPlan{
			{Name: "compliance-scoring", Priority: 10, TimeoutMs: 1, ParallelEligible: true},
			{Name: "context", Priority: 1, TimeoutMs: 1, ParallelEligible: true},
			{Name: "brand", Priority: 2, TimeoutMs: 1, ParallelEligible: true},
			{Name: "policy", Priority: 2, TimeoutMs: 1, ParallelEligible: true},
			{Name: "guardrail-orchestrator", Priority: 10, TimeoutMs: 1, ParallelEligible: true},
		},
	}

	groups := Groups(template)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"context"}, planNames(groups[0]))
	assert.Equal(t, []string{"brand", "policy"}, planNames(groups[1]))
	// ties keep template order
	assert.Equal(t, []string{"compliance-scoring", "guardrail-orchestrator"}, planNames(groups[2]))

	// the input is not reordered
	assert.Equal(t, "compliance-scoring", template.Capabilities[0].Name)
}

func TestGroups_SerialPlanFormsOwnGroup(t *testing.T) {
	template := types.WorkflowTemplate{
		Capabilities: []types.CapabilityPlan{
			{Name: "a", Priority: 1, TimeoutMs: 1, ParallelEligible: true},
			{Name: "b", Priority: 1, TimeoutMs: 1, ParallelEligible: false},
			{Name: "c", Priority: 1, TimeoutMs: 1, ParallelEligible: true},
			{Name: "d", Priority: 1, TimeoutMs: 1, ParallelEligible: true},
		},
	}

	groups := Groups(template)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a"}, planNames(groups[0]))
	assert.Equal(t, []string{"b"}, planNames(groups[1]))
	assert.Equal(t, []string{"c", "d"}, planNames(groups[2]))
}

func TestGroups_DefaultTemplates(t *testing.T) {
	groups := Groups(DefaultTemplates()[types.LevelEnterprise])
	require.Len(t, groups, 6)
	assert.Equal(t, []string{"guardrail-orchestrator", "compliance-scoring"}, planNames(groups[5]))
}

func TestValidate(t *testing.T) {
	valid := DefaultTemplates()
	require.NoError(t, Validate(valid))

	tests := []struct {
		name   string
		mutate func(map[types.Level]types.WorkflowTemplate)
	}{
		{"missing level", func(m map[types.Level]types.WorkflowTemplate) {
			delete(m, types.LevelComplex)
		}},
		{"empty template", func(m map[types.Level]types.WorkflowTemplate) {
			m[types.LevelSimple] = types.WorkflowTemplate{Level: types.LevelSimple}
		}},
		{"duplicate capability", func(m map[types.Level]types.WorkflowTemplate) {
			m[types.LevelSimple] = types.WorkflowTemplate{
				Level:        types.LevelSimple,
				Capabilities: []types.CapabilityPlan{Plan("policy"), Plan("policy")},
			}
		}},
		{"zero timeout", func(m map[types.Level]types.WorkflowTemplate) {
			plan := Plan("policy")
			plan.TimeoutMs = 0
			m[types.LevelSimple] = types.WorkflowTemplate{Level: types.LevelSimple, Capabilities: []types.CapabilityPlan{plan}}
		}},
		{"unknown level", func(m map[types.Level]types.WorkflowTemplate) {
			m["extreme"] = types.WorkflowTemplate{Capabilities: []types.CapabilityPlan{Plan("policy")}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates := DefaultTemplates()
			tt.mutate(templates)
			err := Validate(templates)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestSelector_ReplaceKeepsTableOnError(t *testing.T) {
	selector, err := NewSelector(nil)
	require.NoError(t, err)

	broken := DefaultTemplates()
	delete(broken, types.LevelModerate)
	require.Error(t, selector.Replace(broken))

	assert.Len(t, selector.Select(types.ComplexityScore{Level: types.LevelModerate}).Capabilities, 3)
}

func TestParse(t *testing.T) {
	doc := []byte(`
templates:
  simple:
    - name: context
    - name: policy
      timeout_ms: 4000
    - name: brand-safety
      priority: 2
      parallel_eligible: false
`)

	templates, err := Parse(doc)
	require.NoError(t, err)

	simple := templates[types.LevelSimple]
	require.Len(t, simple.Capabilities, 3)
	assert.Equal(t, 4000, simple.Capabilities[1].TimeoutMs)
	assert.Equal(t, 2, simple.Capabilities[1].Priority)
	assert.Equal(t, "brand-safety", simple.Capabilities[2].Name)
	assert.Equal(t, 2, simple.Capabilities[2].Priority)
	assert.Equal(t, 30000, simple.Capabilities[2].TimeoutMs)
	assert.False(t, simple.Capabilities[2].ParallelEligible)

	// untouched levels keep the defaults
	assert.Equal(t, DefaultTemplates()[types.LevelEnterprise], templates[types.LevelEnterprise])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed yaml", "templates: [unclosed"},
		{"unknown level", "templates:\n  extreme:\n    - name: policy\n"},
		{"empty level", "templates:\n  simple: []\n"},
		{"negative timeout", "templates:\n  simple:\n    - name: policy\n      timeout_ms: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func planNames(plans []types.CapabilityPlan) []string {
	names := make([]string, len(plans))
	for i, p := range plans {
		names[i] = p.Name
	}
	return names
}
