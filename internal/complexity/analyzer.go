package complexity

import (
	"math"
	"strings"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Factor names reported in ComplexityScore.Factors
const (
	FactorUrgency             = "urgency"
	FactorMultiClient         = "multi_client"
	FactorCompetitiveIndustry = "competitive_industry"
	FactorHighRiskTool        = "high_risk_tool"
	FactorRegulatory          = "regulatory"
	FactorDataSensitivity     = "data_sensitivity"
	FactorDeadline            = "deadline"
)

// MaxScore is the upper bound of every complexity score
const MaxScore = 10.0

// Analyzer scores the complexity of a request
type Analyzer interface {
	Analyze(req *types.Request) types.ComplexityScore
}

// Weights are the score contributions of each factor at full strength
type Weights struct {
	Urgency             float64 `json:"urgency"`
	MultiClient         float64 `json:"multi_client"`
	CompetitiveIndustry float64 `json:"competitive_industry"`
	HighRiskTool        float64 `json:"high_risk_tool"`
	Regulatory          float64 `json:"regulatory"`
	DataSensitivity     float64 `json:"data_sensitivity"`
	Deadline            float64 `json:"deadline"`
}

// Terms are the lowercase vocabularies the factors match against
type Terms struct {
	Urgency       []string `json:"urgency"`
	Clients       []string `json:"clients"`
	Industries    []string `json:"industries"`
	HighRiskTools []string `json:"high_risk_tools"`
	Regulatory    []string `json:"regulatory"`
	Sensitivity   []string `json:"sensitivity"`
}

// Config contains analyzer configuration
type Config struct {
	EnterpriseThreshold float64 `json:"enterprise_threshold"`
	ComplexThreshold    float64 `json:"complex_threshold"`
	ModerateThreshold   float64 `json:"moderate_threshold"`
	ParallelExecution   bool    `json:"parallel_execution"`
	Weights             Weights `json:"weights"`
	Terms               Terms   `json:"terms"`
}

// DefaultConfig returns default analyzer configuration
func DefaultConfig() Config {
	return Config{
		EnterpriseThreshold: 7,
		ComplexThreshold:    5,
		ModerateThreshold:   3,
		ParallelExecution:   true,
		Weights: Weights{
			Urgency:             2,
			MultiClient:         2,
			CompetitiveIndustry: 1.5,
			HighRiskTool:        1.5,
			Regulatory:          1.5,
			DataSensitivity:     1.5,
			Deadline:            1,
		},
		Terms: Terms{
			Urgency:       []string{"urgent", "asap", "immediately", "emergency", "critical"},
			Clients:       []string{"pfizer", "novartis", "roche", "merck", "astrazeneca", "sanofi", "toyota", "honda", "ford"},
			Industries:    []string{"pharmaceutical", "automotive", "technology", "banking", "healthcare"},
			HighRiskTools: []string{"midjourney", "dall-e", "stable-diffusion", "runway", "custom", "unknown"},
			Regulatory:    []string{"fda", "gdpr", "hipaa", "sox", "compliance", "regulatory"},
			Sensitivity:   []string{"ssn", "medical", "phi", "pii", "customer data", "financial"},
		},
	}
}

// KeywordAnalyzer scores requests by matching term lists against the message
// and the structured context fields
type KeywordAnalyzer struct {
	config Config
	now    func() time.Time
}

// NewKeywordAnalyzer creates an analyzer using the wall clock for deadlines
func NewKeywordAnalyzer(config Config) *KeywordAnalyzer {
	return &KeywordAnalyzer{
		config: config,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for deadline proximity
func (a *KeywordAnalyzer) WithClock(now func() time.Time) *KeywordAnalyzer {
	a.now = now
	return a
}

// Config returns the analyzer configuration
func (a *KeywordAnalyzer) Config() Config {
	return a.config
}

// Analyze computes the complexity score of req. It never fails: a nil request
// or missing fields contribute nothing.
func (a *KeywordAnalyzer) Analyze(req *types.Request) types.ComplexityScore {
	factors := map[string]float64{
		FactorUrgency:             0,
		FactorMultiClient:         0,
		FactorCompetitiveIndustry: 0,
		FactorHighRiskTool:        0,
		FactorRegulatory:          0,
		FactorDataSensitivity:     0,
		FactorDeadline:            0,
	}

	if req != nil {
		message := strings.ToLower(req.Message)
		rc := req.Context

		factors[FactorUrgency] = math.Min(float64(countTerms(message, a.config.Terms.Urgency))/2, 1)
		factors[FactorMultiClient] = boolFactor(a.countClients(message, rc.Clients) >= 2)
		factors[FactorCompetitiveIndustry] = boolFactor(
			matchesAny(strings.ToLower(rc.Industry), a.config.Terms.Industries) ||
				containsAny(message, a.config.Terms.Industries))
		factors[FactorHighRiskTool] = boolFactor(
			matchesAny(strings.ToLower(rc.Tool), a.config.Terms.HighRiskTools) ||
				containsAny(message, a.config.Terms.HighRiskTools))
		factors[FactorRegulatory] = boolFactor(containsAny(message, a.config.Terms.Regulatory))
		factors[FactorDataSensitivity] = math.Min(float64(a.countSensitivity(message, rc.DataSensitivity))/3, 1)
		factors[FactorDeadline] = a.deadlineFactor(rc.Deadline)
	}

	w := a.config.Weights
	score := factors[FactorUrgency]*w.Urgency +
		factors[FactorMultiClient]*w.MultiClient +
		factors[FactorCompetitiveIndustry]*w.CompetitiveIndustry +
		factors[FactorHighRiskTool]*w.HighRiskTool +
		factors[FactorRegulatory]*w.Regulatory +
		factors[FactorDataSensitivity]*w.DataSensitivity +
		factors[FactorDeadline]*w.Deadline
	score = clamp(score)

	return types.ComplexityScore{
		Level:            a.Level(score),
		Score:            score,
		Factors:          factors,
		ParallelEligible: a.config.ParallelExecution && score >= a.config.ComplexThreshold,
	}
}

// Level maps a score onto a complexity level
func (a *KeywordAnalyzer) Level(score float64) types.Level {
	switch {
	case score >= a.config.EnterpriseThreshold:
		return types.LevelEnterprise
	case score >= a.config.ComplexThreshold:
		return types.LevelComplex
	case score >= a.config.ModerateThreshold:
		return types.LevelModerate
	default:
		return types.LevelSimple
	}
}

// EstimatedProcessingTime is the rough latency expectation for a score
func EstimatedProcessingTime(score float64) time.Duration {
	return time.Duration(math.Max(1000, score*500)) * time.Millisecond
}

// countClients counts distinct known clients named in the context list or the message
func (a *KeywordAnalyzer) countClients(message string, clients []string) int {
	found := make(map[string]bool)
	for _, c := range clients {
		c = strings.ToLower(strings.TrimSpace(c))
		if matchesAny(c, a.config.Terms.Clients) {
			found[c] = true
		}
	}
	for _, c := range a.config.Terms.Clients {
		if strings.Contains(message, c) {
			found[c] = true
		}
	}
	return len(found)
}

// countSensitivity counts distinct sensitivity terms in the context tags or the message
func (a *KeywordAnalyzer) countSensitivity(message string, tags []string) int {
	found := make(map[string]bool)
	for _, term := range a.config.Terms.Sensitivity {
		if strings.Contains(message, term) {
			found[term] = true
			continue
		}
		for _, tag := range tags {
			if strings.EqualFold(strings.TrimSpace(tag), term) {
				found[term] = true
				break
			}
		}
	}
	return len(found)
}

func (a *KeywordAnalyzer) deadlineFactor(deadline *time.Time) float64 {
	if deadline == nil || deadline.IsZero() {
		return 0
	}
	remaining := deadline.Sub(a.now())
	switch {
	case remaining < 24*time.Hour:
		return 1
	case remaining < 72*time.Hour:
		return 0.5
	default:
		return 0
	}
}

func countTerms(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			n++
		}
	}
	return n
}

func containsAny(text string, terms []string) bool {
	return countTerms(text, terms) > 0
}

func matchesAny(value string, terms []string) bool {
	if value == "" {
		return false
	}
	for _, term := range terms {
		if value == term {
			return true
		}
	}
	return false
}

func boolFactor(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(MaxScore, score))
}
