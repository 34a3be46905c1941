package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/agentfleet/internal/catalog"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

func emptySnapshotWithOakLog() worldstate.Snapshot {
	return worldstate.NewSnapshot(
		"bot-1",
		worldstate.GameTime{Tick: 1000, Phase: worldstate.Day},
		worldstate.Player{Health: 20, Hunger: 20},
		worldstate.InventorySummary{Tools: map[string]int{}, KeyItems: map[string]int{}},
		nil,
		[]worldstate.Sighting{{Type: "oak_log", Distance: 5}},
		nil,
		worldstate.TaskContext{ProgressCounters: map[string]int{}},
	)
}

func TestApply_StoneRequestWithoutPickaxe(t *testing.T) {
	g := New(catalog.NewInMemoryCatalog())
	snap := emptySnapshotWithOakLog()

	plan := []subgoal.Subgoal{
		{Name: subgoal.Collect, Params: map[string]interface{}{"block": "stone", "count": 10}},
	}
	res := g.Apply(plan, snap)

	require.NotEmpty(t, res.Subgoals)
	assert.Equal(t, subgoal.GotoNearest, res.Subgoals[0].Name)
	assert.Equal(t, "oak_log", res.Subgoals[0].Params["block"])

	var sawOakLogCollect, sawPlanks, sawTable, sawStick, sawPickaxe, sawStoneCollect bool
	for _, sg := range res.Subgoals {
		switch sg.Name {
		case subgoal.Collect:
			if sg.Params["block"] == "oak_log" {
				sawOakLogCollect = true
			}
			if sg.Params["block"] == "stone" {
				sawStoneCollect = true
				assert.Equal(t, 10, sg.Params["count"])
			}
		case subgoal.Craft:
			switch sg.Params["item"] {
			case "oak_planks":
				sawPlanks = true
			case "crafting_table":
				sawTable = true
			case "stick":
				sawStick = true
			case "wooden_pickaxe":
				sawPickaxe = true
			}
		}
	}

	assert.True(t, sawOakLogCollect)
	assert.True(t, sawPlanks)
	assert.True(t, sawTable)
	assert.True(t, sawStick)
	assert.True(t, sawPickaxe)
	assert.True(t, sawStoneCollect)
	assert.Equal(t, subgoal.Collect, res.Subgoals[len(res.Subgoals)-1].Name)
	assert.Equal(t, "stone", res.Subgoals[len(res.Subgoals)-1].Params["block"])
}

func TestApply_Idempotent(t *testing.T) {
	g := New(catalog.NewInMemoryCatalog())
	snap := emptySnapshotWithOakLog()

	plan := []subgoal.Subgoal{
		{Name: subgoal.Collect, Params: map[string]interface{}{"block": "stone", "count": 10}},
	}
	once := g.Apply(plan, snap)
	twice := g.Apply(once.Subgoals, snap)

	assert.Equal(t, once.Subgoals, twice.Subgoals)
}

func TestApply_DedupesAdjacentIdenticalSubgoals(t *testing.T) {
	g := New(catalog.NewInMemoryCatalog())
	snap := emptySnapshotWithOakLog()

	plan := []subgoal.Subgoal{
		{Name: subgoal.Explore, Params: map[string]interface{}{"radius": 10}},
		{Name: subgoal.Explore, Params: map[string]interface{}{"radius": 10}},
	}
	res := g.Apply(plan, snap)
	assert.Len(t, res.Subgoals, 1)
}

func TestApply_ProjectedInventoryNeverDecreases(t *testing.T) {
	g := New(catalog.NewInMemoryCatalog())
	snap := emptySnapshotWithOakLog()

	plan := []subgoal.Subgoal{
		{Name: subgoal.Craft, Params: map[string]interface{}{"item": "oak_planks", "count": 4}},
		{Name: subgoal.Craft, Params: map[string]interface{}{"item": "stick", "count": 2}},
	}
	res := g.Apply(plan, snap)

	projected := seedProjected(snap)
	for _, sg := range res.Subgoals {
		before := cloneCounts(projected)
		applyProjectedOutcome(sg, projected, g.cat)
		for k, v := range before {
			assert.GreaterOrEqual(t, projected[k], v)
		}
	}
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func TestAutonomousProgressionPlan_ExploresWhenNothingActionable(t *testing.T) {
	g := New(catalog.NewInMemoryCatalog())
	snap := worldstate.NewSnapshot("bot-1", worldstate.GameTime{}, worldstate.Player{}, worldstate.InventorySummary{}, nil, nil, nil, worldstate.TaskContext{})

	res := g.AutonomousProgressionPlan(snap, 8)
	assert.Equal(t, "explore_for_resources", res.Reason)
	require.Len(t, res.Subgoals, 1)
	assert.Equal(t, subgoal.Explore, res.Subgoals[0].Name)
}

func TestAutonomousProgressionPlan_UnlocksCapabilityGap(t *testing.T) {
	g := New(catalog.NewInMemoryCatalog())
	snap := worldstate.NewSnapshot(
		"bot-1", worldstate.GameTime{}, worldstate.Player{}, worldstate.InventorySummary{},
		nil, []worldstate.Sighting{{Type: "stone", Distance: 4}}, nil, worldstate.TaskContext{},
	)

	res := g.AutonomousProgressionPlan(snap, 8)
	assert.Contains(t, res.Reason, "unlock_")
	assert.NotEmpty(t, res.Subgoals)
}
