package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// templateFile is the YAML layout of a template override file:
//
//	templates:
//	  moderate:
//	    - name: context
//	    - name: policy
//	      timeout_ms: 4000
//	    - name: brand-safety
//	      priority: 2
type templateFile struct {
	Templates map[string][]planSpec `yaml:"templates"`
}

// planSpec leaves unset fields to the capability defaults
type planSpec struct {
	Name             string `yaml:"name"`
	Priority         *int   `yaml:"priority"`
	TimeoutMs        *int   `yaml:"timeout_ms"`
	ParallelEligible *bool  `yaml:"parallel_eligible"`
}

// Parse reads a template override document. Levels the document does not
// mention keep their default templates.
func Parse(data []byte) (map[types.Level]types.WorkflowTemplate, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewValidationError("invalid workflow template file").WithCause(err)
	}

	templates := DefaultTemplates()
	for name, specs := range file.Templates {
		level := types.Level(name)
		if !level.Valid() {
			return nil, errors.NewValidationError(fmt.Sprintf("unknown workflow level %q", name))
		}

		plans := make([]types.CapabilityPlan, 0, len(specs))
		for _, spec := range specs {
			plan := Plan(spec.Name)
			if spec.Priority != nil {
				plan.Priority = *spec.Priority
			}
			if spec.TimeoutMs != nil {
				plan.TimeoutMs = *spec.TimeoutMs
			}
			if spec.ParallelEligible != nil {
				plan.ParallelEligible = *spec.ParallelEligible
			}
			plans = append(plans, plan)
		}
		templates[level] = types.WorkflowTemplate{Level: level, Capabilities: plans}
	}

	if err := Validate(templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// LoadFile reads and parses a template override file
func LoadFile(path string) (map[types.Level]types.WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewNotFoundError("workflow template file").WithCause(err).WithDetail("path", path)
	}
	return Parse(data)
}

// Reload replaces the selector's table with the contents of path
func (s *Selector) Reload(path string) error {
	templates, err := LoadFile(path)
	if err != nil {
		return err
	}
	return s.Replace(templates)
}
