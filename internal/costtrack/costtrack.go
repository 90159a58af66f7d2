// Package costtrack keeps an append-only ledger of external-capability
// invocations and derives aggregate and per-stage statistics on demand.
// Derived values are recomputed on each query; call volume is small and
// correctness matters more than speed here.
package costtrack

import (
	"sync"
	"time"

	"github.com/fhalamzie/topicminer/internal/metrics"
	"github.com/google/uuid"
)

// APIType identifies one external capability. The free/paid classification is
// a fixed static partition over these types; it is never inferred from the
// cost value (a free-tier call reporting nonzero cost after quota exhaustion
// is still classified by its declared type).
type APIType string

const (
	APIGeminiFree APIType = "gemini_free"
	APITavily     APIType = "tavily"
	APINewsFree   APIType = "google_news_free"
	APINewsPaid   APIType = "newsapi"
)

var freeTypes = map[APIType]bool{
	APIGeminiFree: true,
	APINewsFree:   true,
}

// Free reports whether the type belongs to the free tier of the partition.
func (t APIType) Free() bool {
	return freeTypes[t]
}

// Call is one immutable ledger record.
type Call struct {
	ID        string    `json:"id"`
	Type      APIType   `json:"api_type"`
	Stage     string    `json:"stage"`
	Success   bool      `json:"success"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Stats aggregates ledger records for one stage or for the whole run.
type Stats struct {
	Calls     int     `json:"calls"`
	FreeCalls int     `json:"free_calls"`
	PaidCalls int     `json:"paid_calls"`
	Successes int     `json:"successes"`
	Failures  int     `json:"failures"`
	TotalCost float64 `json:"total_cost"`
	// FallbackTriggered is true when the bucket holds at least one free-tier
	// and at least one paid-tier record, regardless of their success flags.
	// That mix is the signature of a free→paid fallback having occurred.
	FallbackTriggered bool `json:"fallback_triggered"`
}

// Tracker owns the ledger for the lifetime of one pipeline instance. Safe for
// concurrent use.
type Tracker struct {
	mu    sync.Mutex
	calls []Call
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track appends one record. It never fails; failed calls are recorded too
// (typically with cost 0.0) because the fallback detection needs them.
func (t *Tracker) Track(apiType APIType, stage string, success bool, cost float64, errMsg string) {
	call := Call{
		ID:        uuid.New().String(),
		Type:      apiType,
		Stage:     stage,
		Success:   success,
		Cost:      cost,
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}

	t.mu.Lock()
	t.calls = append(t.calls, call)
	t.mu.Unlock()

	metrics.RecordCall(string(apiType), stage, success, cost)
}

// StageStats aggregates all records tagged with the given stage.
func (t *Tracker) StageStats(stage string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return aggregate(t.calls, func(c Call) bool { return c.Stage == stage })
}

// Summary aggregates all records across all stages.
func (t *Tracker) Summary() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return aggregate(t.calls, func(Call) bool { return true })
}

// TotalCost is the sum of cost over all recorded calls, including failed ones.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0.0
	for _, c := range t.calls {
		total += c.Cost
	}
	return total
}

// Calls returns a copy of the ledger in append order.
func (t *Tracker) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// Reset clears the ledger. Used between independent pipeline runs sharing one
// orchestrator instance.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.calls = nil
	t.mu.Unlock()
}

func aggregate(calls []Call, match func(Call) bool) Stats {
	var s Stats
	for _, c := range calls {
		if !match(c) {
			continue
		}
		s.Calls++
		if c.Type.Free() {
			s.FreeCalls++
		} else {
			s.PaidCalls++
		}
		if c.Success {
			s.Successes++
		} else {
			s.Failures++
		}
		s.TotalCost += c.Cost
	}
	s.FallbackTriggered = s.FreeCalls > 0 && s.PaidCalls > 0
	return s
}
