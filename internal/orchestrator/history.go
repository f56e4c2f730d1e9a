package orchestrator

import (
	"sync"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// DefaultHistorySize bounds the performance history
const DefaultHistorySize = 1000

// PerformanceRecord is what the orchestrator remembers about one request
type PerformanceRecord struct {
	RequestID      string               `json:"request_id"`
	Level          types.Level          `json:"level,omitempty"`
	Score          float64              `json:"score"`
	Status         types.DecisionStatus `json:"status"`
	Cached         bool                 `json:"cached"`
	ExecutionType  types.ExecutionType  `json:"execution_type,omitempty"`
	Capabilities   int                  `json:"capabilities"`
	Failures       int                  `json:"failures"`
	ProcessingTime time.Duration        `json:"processing_time"`
	Timestamp      time.Time            `json:"timestamp"`
}

// Successful reports whether the request produced a decision without any
// capability failing
func (r PerformanceRecord) Successful() bool {
	return r.Status != types.StatusError && r.Failures == 0
}

// history is a fixed-size ring of the most recent records
type history struct {
	mu      sync.RWMutex
	records []PerformanceRecord
	next    int
	full    bool
}

func newHistory(size int) *history {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &history{records: make([]PerformanceRecord, size)}
}

func (h *history) add(r PerformanceRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[h.next] = r
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.records)
	}
	return h.next
}

// recent returns up to n records, newest first
func (h *history) recent(n int) []PerformanceRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = len(h.records)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]PerformanceRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.records)) % len(h.records)
		out = append(out, h.records[idx])
	}
	return out
}

func (h *history) stats() RequestStats {
	records := h.recent(0)
	stats := RequestStats{
		Total:    len(records),
		ByLevel:  make(map[types.Level]int),
		ByStatus: make(map[string]int),
	}
	if len(records) == 0 {
		return stats
	}

	var total time.Duration
	successes := 0
	for _, r := range records {
		total += r.ProcessingTime
		if r.Cached {
			stats.CacheHits++
		}
		if r.Level != "" {
			stats.ByLevel[r.Level]++
		}
		stats.ByStatus[string(r.Status)]++
		if r.Successful() {
			successes++
		}
	}

	n := float64(len(records))
	stats.CacheHitRate = float64(stats.CacheHits) / n
	stats.AvgProcessingTimeMs = float64(total.Milliseconds()) / n
	stats.SuccessRate = float64(successes) / n
	return stats
}
