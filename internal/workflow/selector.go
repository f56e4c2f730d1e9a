package workflow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Defaults for capabilities without an explicit priority or timeout
const (
	DefaultPriority = 10
	DefaultTimeout  = 30 * time.Second
)

var defaultPriorities = map[string]int{
	"context":            1,
	"policy":             2,
	"audit":              3,
	"negotiation":        4,
	"conflict-detection": 5,
}

var defaultTimeouts = map[string]time.Duration{
	"context":            5 * time.Second,
	"policy":             10 * time.Second,
	"audit":              15 * time.Second,
	"negotiation":        20 * time.Second,
	"conflict-detection": 10 * time.Second,
}

var defaultLevels = map[types.Level][]string{
	types.LevelSimple:     {"context", "policy"},
	types.LevelModerate:   {"context", "policy", "audit"},
	types.LevelComplex:    {"context", "policy", "audit", "negotiation", "conflict-detection"},
	types.LevelEnterprise: {"context", "policy", "audit", "negotiation", "conflict-detection", "guardrail-orchestrator", "compliance-scoring"},
}

// Plan returns the default plan for a capability name
func Plan(name string) types.CapabilityPlan {
	priority, ok := defaultPriorities[name]
	if !ok {
		priority = DefaultPriority
	}
	timeout, ok := defaultTimeouts[name]
	if !ok {
		timeout = DefaultTimeout
	}
	return types.CapabilityPlan{
		Name:             name,
		Priority:         priority,
		TimeoutMs:        int(timeout.Milliseconds()),
		ParallelEligible: true,
	}
}

// DefaultTemplates returns the built-in level to template table
func DefaultTemplates() map[types.Level]types.WorkflowTemplate {
	templates := make(map[types.Level]types.WorkflowTemplate, len(defaultLevels))
	for level, names := range defaultLevels {
		plans := make([]types.CapabilityPlan, len(names))
		for i, name := range names {
			plans[i] = Plan(name)
		}
		templates[level] = types.WorkflowTemplate{Level: level, Capabilities: plans}
	}
	return templates
}

// Selector maps complexity scores to workflow templates. The table can be
// swapped at runtime; Select always sees a complete table.
type Selector struct {
	mu        sync.RWMutex
	templates map[types.Level]types.WorkflowTemplate
	logger    *logging.Logger
}

// NewSelector creates a selector over templates, or the defaults when nil
func NewSelector(templates map[types.Level]types.WorkflowTemplate) (*Selector, error) {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if err := Validate(templates); err != nil {
		return nil, err
	}
	return &Selector{
		templates: cloneTable(templates),
		logger:    logging.GetLogger(),
	}, nil
}

// Select returns the template for the score's level. Unknown levels use the simple template.
func (s *Selector) Select(score types.ComplexityScore) types.WorkflowTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	template, ok := s.templates[score.Level]
	if !ok {
		template = s.templates[types.LevelSimple]
	}
	return cloneTemplate(template)
}

// Templates returns a copy of the current table
func (s *Selector) Templates() map[types.Level]types.WorkflowTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTable(s.templates)
}

// Replace swaps the table after validating it; on error the current table is kept
func (s *Selector) Replace(templates map[types.Level]types.WorkflowTemplate) error {
	if err := Validate(templates); err != nil {
		return err
	}

	s.mu.Lock()
	s.templates = cloneTable(templates)
	s.mu.Unlock()

	s.logger.Info("Workflow templates replaced", "levels", len(templates))
	return nil
}

// Validate checks that every level has a non-empty template of uniquely
// named capabilities with positive timeouts
func Validate(templates map[types.Level]types.WorkflowTemplate) error {
	for _, level := range types.Levels {
		template, ok := templates[level]
		if !ok {
			return errors.NewValidationError(fmt.Sprintf("workflow template for level %s is missing", level))
		}
		if len(template.Capabilities) == 0 {
			return errors.NewValidationError(fmt.Sprintf("workflow template for level %s is empty", level))
		}

		seen := make(map[string]bool, len(template.Capabilities))
		for _, plan := range template.Capabilities {
			if plan.Name == "" {
				return errors.NewValidationError(fmt.Sprintf("workflow template for level %s has a capability without a name", level))
			}
			if seen[plan.Name] {
				return errors.NewValidationError(fmt.Sprintf("capability %s appears twice in level %s", plan.Name, level))
			}
			if plan.TimeoutMs <= 0 {
				return errors.NewValidationError(fmt.Sprintf("capability %s in level %s needs a positive timeout", plan.Name, level))
			}
			seen[plan.Name] = true
		}
	}
	for level := range templates {
		if !level.Valid() {
			return errors.NewValidationError(fmt.Sprintf("unknown workflow level %q", level))
		}
	}
	return nil
}

// Groups sorts the template by ascending priority, keeping template order for
// ties, and groups plans of equal priority. A plan that is not parallel
// eligible always forms its own group.
func Groups(template types.WorkflowTemplate) [][]types.CapabilityPlan {
	plans := make([]types.CapabilityPlan, len(template.Capabilities))
	copy(plans, template.Capabilities)
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].Priority < plans[j].Priority
	})

	var groups [][]types.CapabilityPlan
	for i, plan := range plans {
		startNew := i == 0 ||
			plan.Priority != plans[i-1].Priority ||
			!plan.ParallelEligible ||
			!plans[i-1].ParallelEligible
		if startNew {
			groups = append(groups, []types.CapabilityPlan{plan})
			continue
		}
		last := len(groups) - 1
		groups[last] = append(groups[last], plan)
	}
	return groups
}

func cloneTemplate(t types.WorkflowTemplate) types.WorkflowTemplate {
	plans := make([]types.CapabilityPlan, len(t.Capabilities))
	copy(plans, t.Capabilities)
	return types.WorkflowTemplate{Level: t.Level, Capabilities: plans}
}

func cloneTable(templates map[types.Level]types.WorkflowTemplate) map[types.Level]types.WorkflowTemplate {
	out := make(map[types.Level]types.WorkflowTemplate, len(templates))
	for level, t := range templates {
		out[level] = cloneTemplate(t)
	}
	return out
}
