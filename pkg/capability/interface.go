package capability

import (
	"context"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Capability is an independent decision-making function the engine invokes.
// The engine only looks at success, failure, latency and the self-reported
// confidence of the returned output.
type Capability interface {
	// Name returns the registry name the workflow templates refer to
	Name() string

	// Invoke runs the capability for one request. A returned error should be
	// an *errors.AppError when the failure class is known.
	Invoke(ctx context.Context, input types.CapabilityInput) (*types.CapabilityOutput, error)
}

// HealthChecker is implemented by capabilities that can report their own health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Func adapts a plain function to the Capability interface
type Func struct {
	name string
	fn   func(ctx context.Context, input types.CapabilityInput) (*types.CapabilityOutput, error)
}

// NewFunc creates a Capability named name backed by fn
func NewFunc(name string, fn func(ctx context.Context, input types.CapabilityInput) (*types.CapabilityOutput, error)) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Capability
func (f *Func) Name() string { return f.name }

// Invoke implements Capability
func (f *Func) Invoke(ctx context.Context, input types.CapabilityInput) (*types.CapabilityOutput, error) {
	return f.fn(ctx, input)
}

// Confidence returns a pointer to c, for building outputs
func Confidence(c float64) *float64 {
	return &c
}
