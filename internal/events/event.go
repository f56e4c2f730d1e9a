package events

import (
	"time"
)

// Severity represents how much attention an event needs
type Severity int

const (
	// SeverityInfo - routine events
	SeverityInfo Severity = iota
	// SeverityWarning - degraded behaviour worth attention
	SeverityWarning
	// SeverityError - failures that affected a request
	SeverityError
	// SeverityCritical - a capability was cut off
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the severity by name
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Type identifies what an event reports
type Type string

const (
	TypeCapabilityCompleted    Type = "capability_completed"
	TypeCacheHit               Type = "cache_hit"
	TypeCacheMiss              Type = "cache_miss"
	TypeBreakerTransition      Type = "breaker_transition"
	TypeRetryScheduled         Type = "retry_scheduled"
	TypeRateLimited            Type = "rate_limited"
	TypeOrchestrationCompleted Type = "orchestration_completed"
)

// Event is one structured observability record
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Severity   Severity          `json:"severity"`
	RequestID  string            `json:"request_id,omitempty"`
	Capability string            `json:"capability,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	LatencyMs  int64             `json:"latency_ms,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
