package guard

import (
	"fmt"
	"sort"

	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// ProgressionResult is the Autonomous Progression Plan's output: a plan plus
// the synthesized reason string the controller logs and surfaces in
// metrics.
type ProgressionResult struct {
	Reason   string
	Subgoals []subgoal.Subgoal
}

const defaultDesiredIncrement = 8

// AutonomousProgressionPlan implements §4.5's fallback strategy: first look
// for a capability gap (a nearby resource whose harvest tool is missing)
// and unlock it; otherwise gather the nearest actionable resource with
// positive shortage against desiredIncrement; otherwise explore.
func (g *Guard) AutonomousProgressionPlan(snap worldstate.Snapshot, desiredIncrement int) ProgressionResult {
	if desiredIncrement <= 0 {
		desiredIncrement = defaultDesiredIncrement
	}
	projected := seedProjected(snap)

	for _, r := range snap.NearbySummary.Resources {
		spec, ok := g.cat.ResolveBlock(r.Type)
		if !ok || spec.RequiredToolKind == "" {
			continue
		}
		if projectedHasQualifyingTool(projected, g.cat, spec.RequiredToolKind, spec.MinTier) {
			continue
		}
		toolItem, ok := g.cat.ToolFor(spec.RequiredToolKind, spec.MinTier)
		if !ok {
			continue
		}
		plan, _ := g.acquire(toolItem, 1, projected, snap, 0, map[string]bool{})
		return ProgressionResult{
			Reason:   fmt.Sprintf("unlock_%s_for_%s", toolItem, r.Type),
			Subgoals: plan,
		}
	}

	type candidate struct {
		blockName string
		shortage  int
		distance  float64
	}
	var candidates []candidate
	for _, r := range snap.NearbySummary.Resources {
		spec, ok := g.cat.ResolveBlock(r.Type)
		if !ok {
			continue
		}
		if spec.RequiredToolKind != "" && !projectedHasQualifyingTool(projected, g.cat, spec.RequiredToolKind, spec.MinTier) {
			continue
		}
		drop := spec.PrimaryDrop
		if drop == "" {
			drop = spec.Name
		}
		shortage := desiredIncrement - projected[drop]
		if shortage > 0 {
			candidates = append(candidates, candidate{blockName: spec.Name, shortage: shortage, distance: r.Distance})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].shortage != candidates[j].shortage {
			return candidates[i].shortage > candidates[j].shortage
		}
		return candidates[i].distance < candidates[j].distance
	})

	if len(candidates) > 0 {
		top := candidates[0]
		return ProgressionResult{
			Reason: "autonomous_progression_gather",
			Subgoals: []subgoal.Subgoal{
				{Name: subgoal.GotoNearest, Params: map[string]interface{}{"block": top.blockName, "max_distance": 48}},
				{Name: subgoal.Collect, Params: map[string]interface{}{"block": top.blockName, "count": top.shortage}},
			},
		}
	}

	return ProgressionResult{
		Reason:   "explore_for_resources",
		Subgoals: []subgoal.Subgoal{{Name: subgoal.Explore, Params: map[string]interface{}{"radius": 26}}},
	}
}
