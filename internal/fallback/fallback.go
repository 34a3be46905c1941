// Package fallback implements the deterministic Fallback Planner: a pure
// function of (snapshot, reason, base) that always returns a
// valid plan, used whenever the LLM path is unavailable, denied, or
// erroring.
package fallback

import (
	"github.com/fleetcore/agentfleet/internal/guard"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

const (
	lowHealthThreshold       = 8.0
	inventoryPressureThreshold = 120
	hostileProximityThreshold = 10.0
)

// Plan is the Fallback Planner's output.
type Plan struct {
	Subgoals  []subgoal.Subgoal
	RiskFlags []string
	Reason    string
}

// Planner wraps the Autonomous Progression Plan (owned by the Feasibility
// Guard) as the else-branch of the fallback decision tree.
type Planner struct {
	guard *guard.Guard
}

// New constructs a Planner delegating progression planning to g.
func New(g *guard.Guard) *Planner {
	return &Planner{guard: g}
}

// Plan implements the fixed priority order: low health, then inventory
// pressure, then nearby hostiles, else autonomous progression.
func (p *Planner) Plan(snap worldstate.Snapshot, reason string, base worldstate.Position) Plan {
	if snap.Player.Health <= lowHealthThreshold {
		return Plan{
			Subgoals: []subgoal.Subgoal{
				{Name: subgoal.Goto, Params: gotoParams(base)},
				{Name: subgoal.CombatGuard, Params: map[string]interface{}{"radius": 12, "duration": 6000}},
			},
			RiskFlags: []string{"LOW_HEALTH"},
			Reason:    reason,
		}
	}

	if snap.InventorySummary.Load() >= inventoryPressureThreshold {
		return Plan{
			Subgoals: []subgoal.Subgoal{
				{Name: subgoal.Goto, Params: gotoParams(base)},
				{Name: subgoal.Deposit, Params: map[string]interface{}{"strategy": "all_non_essential"}},
			},
			RiskFlags: []string{"INVENTORY_PRESSURE"},
			Reason:    reason,
		}
	}

	if d := snap.NearestHostileDistance(); d >= 0 && d < hostileProximityThreshold {
		return Plan{
			Subgoals: []subgoal.Subgoal{
				{Name: subgoal.CombatEngage, Params: map[string]interface{}{"max_targets": 2, "max_distance": 18}},
			},
			RiskFlags: []string{"HOSTILES_NEARBY"},
			Reason:    reason,
		}
	}

	progression := p.guard.AutonomousProgressionPlan(snap, 8)
	return Plan{
		Subgoals: progression.Subgoals,
		Reason:   progression.Reason,
	}
}

func gotoParams(pos worldstate.Position) map[string]interface{} {
	return map[string]interface{}{"x": int(pos.X), "y": int(pos.Y), "z": int(pos.Z), "range": 2}
}
