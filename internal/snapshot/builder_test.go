package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

type fakeAgent struct {
	state     adapter.EntityState
	stateErr  error
	blocksFor map[string][]adapter.BlockSighting
	blocksErr error
}

func (f *fakeAgent) Events() <-chan adapter.ConnectionEvent { return nil }
func (f *fakeAgent) State(ctx context.Context) (adapter.EntityState, error) {
	return f.state, f.stateErr
}
func (f *fakeAgent) FindBlocks(ctx context.Context, pred adapter.BlockPredicate, limit int) ([]adapter.BlockSighting, error) {
	if f.blocksErr != nil {
		return nil, f.blocksErr
	}
	var out []adapter.BlockSighting
	for name, sightings := range f.blocksFor {
		if pred(name) {
			out = append(out, sightings...)
		}
	}
	return out, nil
}
func (f *fakeAgent) FindNearestBlock(ctx context.Context, name string) (adapter.BlockSighting, bool, error) {
	return adapter.BlockSighting{}, false, nil
}
func (f *fakeAgent) PathfindTo(ctx context.Context, pos worldstate.Position, rangeUnits int) error {
	return nil
}
func (f *fakeAgent) LookAt(ctx context.Context, pos worldstate.Position) error { return nil }
func (f *fakeAgent) SetControlState(ctx context.Context, state adapter.ControlState, active bool) error {
	return nil
}
func (f *fakeAgent) ClearControls(ctx context.Context) error                { return nil }
func (f *fakeAgent) Dig(ctx context.Context, pos worldstate.Position) error { return nil }
func (f *fakeAgent) PlaceBlock(ctx context.Context, pos worldstate.Position, heldItem string) error {
	return nil
}
func (f *fakeAgent) Equip(ctx context.Context, item string) error                    { return nil }
func (f *fakeAgent) OpenContainer(ctx context.Context, pos worldstate.Position) error { return nil }
func (f *fakeAgent) CraftRecipe(ctx context.Context, item string, count int, tableRequired bool) error {
	return nil
}
func (f *fakeAgent) Chat(ctx context.Context, message string) error { return nil }
func (f *fakeAgent) Quit(ctx context.Context) error                 { return nil }
func (f *fakeAgent) Combat() adapter.CombatPlugin                   { return nil }

func TestBuild_DerivesPlayerAndTimeFromState(t *testing.T) {
	ag := &fakeAgent{state: adapter.EntityState{
		Position:  worldstate.Position{X: 1, Y: 2, Z: 3},
		Dimension: "overworld",
		Health:    18,
		Hunger:    15,
		TimeOfDay: 13000,
		Inventory: map[string]int{},
	}}
	b := NewBuilder("agent-1", nil, nil)
	task := worldstate.TaskContext{CurrentGoal: "mine"}

	snap, err := b.Build(context.Background(), ag, task, 999, worldstate.Night)
	require.NoError(t, err)

	assert.Equal(t, "agent-1", snap.AgentID)
	assert.Equal(t, int64(13000), snap.Time.Tick, "snapshot time must come from the adapter's TimeOfDay, not the tick counter")
	assert.Equal(t, worldstate.Night, snap.Time.Phase)
	assert.Equal(t, 18.0, snap.Player.Health)
	assert.Equal(t, worldstate.Position{X: 1, Y: 2, Z: 3}, snap.Player.Position)
}

func TestBuild_StateErrorPropagates(t *testing.T) {
	ag := &fakeAgent{stateErr: assertErr("adapter unavailable")}
	b := NewBuilder("agent-1", nil, nil)
	_, err := b.Build(context.Background(), ag, worldstate.TaskContext{}, 0, worldstate.Day)
	assert.Error(t, err)
}

func TestBuild_ScansResourcesAndPOISeparately(t *testing.T) {
	ag := &fakeAgent{
		state: adapter.EntityState{Inventory: map[string]int{}},
		blocksFor: map[string][]adapter.BlockSighting{
			"iron_ore":       {{Name: "iron_ore", Distance: 5}},
			"crafting_table": {{Name: "crafting_table", Distance: 2}},
		},
	}
	b := NewBuilder("agent-1", []string{"iron_ore"}, []string{"crafting_table"})
	snap, err := b.Build(context.Background(), ag, worldstate.TaskContext{}, 0, worldstate.Day)
	require.NoError(t, err)

	require.Len(t, snap.NearbySummary.Resources, 1)
	assert.Equal(t, "iron_ore", snap.NearbySummary.Resources[0].Type)
	require.Len(t, snap.NearbySummary.PointsOfInterest, 1)
	assert.Equal(t, "crafting_table", snap.NearbySummary.PointsOfInterest[0].Type)
}

func TestBuild_NearbyHostilesCarryThrough(t *testing.T) {
	ag := &fakeAgent{state: adapter.EntityState{
		Inventory:      map[string]int{},
		NearbyHostiles: []adapter.BlockSighting{{Name: "zombie", Distance: 4}},
	}}
	b := NewBuilder("agent-1", nil, nil)
	snap, err := b.Build(context.Background(), ag, worldstate.TaskContext{}, 0, worldstate.Night)
	require.NoError(t, err)
	assert.Equal(t, 4.0, snap.NearestHostileDistance())
}

func TestSummarizeInventory_ClassifiesByNameSuffix(t *testing.T) {
	items := map[string]int{
		"iron_pickaxe": 1,
		"oak_log":      4,
		"cobblestone":  12,
		"bread":        3,
		"diamond":      2,
	}
	inv := summarizeInventory(items)

	assert.Equal(t, 1, inv.Tools["iron_pickaxe"])
	assert.Equal(t, 3, inv.FoodTotal)
	assert.Equal(t, 16, inv.Blocks, "oak_log and cobblestone both count as blocks")
	assert.Equal(t, 2, inv.KeyItems["diamond"])
	assert.Equal(t, 3, inv.KeyItems["bread"], "food also tracked as a key item per the builder's classification")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
