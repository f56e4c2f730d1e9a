package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
)

// Health represents the last known health of a capability
type Health struct {
	Status       string    `json:"status"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	CheckCount   int64     `json:"check_count"`
	FailureCount int64     `json:"failure_count"`
}

// Capability health statuses
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// Registry holds the capability providers resolved at startup
type Registry struct {
	capabilities map[string]Capability
	health       map[string]Health
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
		health:       make(map[string]Health),
	}
}

// Register adds a capability under its own name
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return errors.NewValidationError("capability cannot be nil")
	}
	name := c.Name()
	if name == "" {
		return errors.NewValidationError("capability name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[name]; exists {
		return errors.NewValidationError(fmt.Sprintf("capability %s is already registered", name))
	}

	r.capabilities[name] = c
	r.health[name] = Health{Status: StatusUnknown, LastCheck: time.Now()}
	return nil
}

// Get retrieves a capability by name
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.capabilities[name]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("capability %s", name))
	}
	return c, nil
}

// Names returns the registered capability names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheck checks one capability. Capabilities without a HealthChecker are reported healthy.
func (r *Registry) HealthCheck(ctx context.Context, name string) error {
	c, err := r.Get(name)
	if err != nil {
		return err
	}

	if hc, ok := c.(HealthChecker); ok {
		healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = hc.HealthCheck(healthCtx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	health := r.health[name]
	health.LastCheck = time.Now()
	health.CheckCount++
	if err != nil {
		health.Status = StatusUnhealthy
		health.LastError = err.Error()
		health.FailureCount++
	} else {
		health.Status = StatusHealthy
		health.LastError = ""
	}
	r.health[name] = health

	return err
}

// HealthCheckAll checks every capability and returns the resulting health map
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]Health {
	for _, name := range r.Names() {
		_ = r.HealthCheck(ctx, name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Health, len(r.health))
	for name, h := range r.health {
		out[name] = h
	}
	return out
}
