package resilience

import (
	"sort"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// DegradationLevel represents how much of the capability set is unavailable
type DegradationLevel int

const (
	// LevelNormal - every known capability admits calls
	LevelNormal DegradationLevel = iota
	// LevelPartial - some capabilities are open or probing
	LevelPartial
	// LevelSevere - at least half of the capabilities are open
	LevelSevere
	// LevelCritical - every capability is open
	LevelCritical
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelPartial:
		return "PARTIAL"
	case LevelSevere:
		return "SEVERE"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// HealthReport summarizes breaker health across capabilities
type HealthReport struct {
	Level       string                                `json:"level"`
	Healthy     bool                                  `json:"healthy"`
	Open        []string                              `json:"open,omitempty"`
	HalfOpen    []string                              `json:"half_open,omitempty"`
	Breakers    map[string]types.CircuitBreakerState `json:"breakers"`
	degradation DegradationLevel
}

// Degradation returns the computed level
func (r HealthReport) Degradation() DegradationLevel {
	return r.degradation
}

// Health reports the degradation level implied by the current breaker states
func (l *Layer) Health() HealthReport {
	states := l.BreakerStates()
	report := HealthReport{Breakers: states}

	for name, s := range states {
		switch s.State {
		case types.BreakerOpen:
			report.Open = append(report.Open, name)
		case types.BreakerHalfOpen:
			report.HalfOpen = append(report.HalfOpen, name)
		}
	}
	sort.Strings(report.Open)
	sort.Strings(report.HalfOpen)

	report.degradation = degradationFor(len(states), len(report.Open), len(report.HalfOpen))
	report.Level = report.degradation.String()
	report.Healthy = report.degradation == LevelNormal || report.degradation == LevelPartial
	return report
}

func degradationFor(total, open, halfOpen int) DegradationLevel {
	switch {
	case total == 0 || open+halfOpen == 0:
		return LevelNormal
	case open == total:
		return LevelCritical
	case open*2 >= total:
		return LevelSevere
	default:
		return LevelPartial
	}
}
