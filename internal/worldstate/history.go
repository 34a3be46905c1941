package worldstate

import "github.com/fleetcore/agentfleet/internal/subgoal"

// HistoryEntry is an append-only record of a single completed subgoal
// attempt.
type HistoryEntry struct {
	TimestampMs    int64                  `json:"timestamp"`
	SubgoalName    subgoal.Name           `json:"subgoal_name"`
	Params         map[string]interface{} `json:"params"`
	Outcome        subgoal.Outcome        `json:"outcome"`
	ErrorCode      subgoal.FailureCode    `json:"error_code,omitempty"`
	ErrorDetails   string                 `json:"error_details,omitempty"`
	InventoryDelta map[string]int         `json:"inventory_delta,omitempty"`
	HealthDelta    float64                `json:"health_delta"`
	DurationMs     int64                  `json:"duration_ms"`
}

// History is a bounded, FIFO-evicted ring buffer of recent attempts.
// Capacity defaults to 20 per the data model.
type History struct {
	capacity int
	entries  []HistoryEntry
}

// NewHistory constructs a History with the given capacity (default 20 when
// capacity <= 0).
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 20
	}
	return &History{capacity: capacity}
}

// Append adds an entry, evicting the oldest if at capacity. History append
// order must equal execution completion order; the caller is responsible
// for calling Append only from the controller's single-threaded tick.
func (h *History) Append(e HistoryEntry) {
	h.entries = append(h.entries, e)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

// Entries returns a defensive copy of the current buffer, oldest first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the current number of buffered entries.
func (h *History) Len() int { return len(h.entries) }
