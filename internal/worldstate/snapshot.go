// Package worldstate holds the immutable per-tick world view (Snapshot),
// the bounded attempt history, and the per-agent task state machine data.
package worldstate

import "sort"

// TimePhase is one of the four observed day-phases.
type TimePhase string

const (
	Dawn  TimePhase = "dawn"
	Day   TimePhase = "day"
	Dusk  TimePhase = "dusk"
	Night TimePhase = "night"
)

// GameTime carries the adapter-reported tick and derived phase.
type GameTime struct {
	Tick  int64     `json:"tick"`
	Phase TimePhase `json:"phase"`
}

// Position is a world coordinate triple.
type Position struct {
	X, Y, Z float64
}

// Player describes the controlled entity's observable state.
type Player struct {
	Position  Position `json:"position"`
	Dimension string   `json:"dimension"`
	Health    float64  `json:"health"`
	Hunger    float64  `json:"hunger"`
	Effects   []string `json:"effects,omitempty"`
}

// InventorySummary is the compact rollup the guard and fallback planner
// reason over.
type InventorySummary struct {
	FoodTotal int            `json:"food_total"`
	Tools     map[string]int `json:"tools"`
	Blocks    int            `json:"blocks"`
	KeyItems  map[string]int `json:"key_items"`
}

// Load returns blocks + sum(key_items), the inventory_load quantity the
// fallback planner compares against its pressure threshold.
func (s InventorySummary) Load() int {
	total := s.Blocks
	for _, n := range s.KeyItems {
		total += n
	}
	return total
}

// Sighting is a nearby entity or block/point-of-interest observation.
type Sighting struct {
	Type     string   `json:"type"`
	Distance float64  `json:"distance"`
	Position Position `json:"position,omitempty"`
}

// NearbySummary is the bounded, distance-sorted set of things around the
// agent: hostiles (≤6), resources (≤8), points of interest (≤6).
type NearbySummary struct {
	Hostiles         []Sighting `json:"hostiles"`
	Resources        []Sighting `json:"resources"`
	PointsOfInterest []Sighting `json:"points_of_interest"`
}

const (
	maxResources = 8
	maxHostiles  = 6
	maxPOI       = 6
)

// TaskContext is the planner-visible slice of task progress.
type TaskContext struct {
	CurrentGoal       string         `json:"current_goal"`
	CurrentSubgoal    string         `json:"current_subgoal,omitempty"`
	ProgressCounters  map[string]int `json:"progress_counters"`
	LastError         string         `json:"last_error,omitempty"`
}

// Snapshot is the compact, immutable world view derived by the Snapshot
// Builder. Once built it is never mutated; the guard and planner only ever
// read from it.
type Snapshot struct {
	AgentID          string            `json:"agent_id"`
	Time             GameTime          `json:"time"`
	Player           Player            `json:"player"`
	InventorySummary InventorySummary  `json:"inventory_summary"`
	NearbySummary    NearbySummary     `json:"nearby_summary"`
	TaskContext      TaskContext       `json:"task_context"`
}

// NewSnapshot builds a Snapshot enforcing its invariants: non-negative
// distances, ascending-distance sort, and the bounded list lengths. Inputs
// with negative distances are dropped rather than clamped, since a negative
// distance signals a malformed adapter reading.
func NewSnapshot(agentID string, t GameTime, player Player, inv InventorySummary, hostiles, resources, poi []Sighting, task TaskContext) Snapshot {
	return Snapshot{
		AgentID:          agentID,
		Time:             t,
		Player:           player,
		InventorySummary: inv,
		NearbySummary: NearbySummary{
			Hostiles:         boundSorted(hostiles, maxHostiles),
			Resources:        boundSorted(resources, maxResources),
			PointsOfInterest: boundSorted(poi, maxPOI),
		},
		TaskContext: task,
	}
}

func boundSorted(in []Sighting, limit int) []Sighting {
	filtered := make([]Sighting, 0, len(in))
	for _, s := range in {
		if s.Distance >= 0 {
			filtered = append(filtered, s)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Distance < filtered[j].Distance })
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// NearestHostileDistance returns the closest hostile's distance, or -1 if
// none are present.
func (s Snapshot) NearestHostileDistance() float64 {
	if len(s.NearbySummary.Hostiles) == 0 {
		return -1
	}
	return s.NearbySummary.Hostiles[0].Distance
}
