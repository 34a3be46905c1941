// Package snapshot implements the Snapshot Builder: derives a compact,
// immutable worldstate.Snapshot from the Agent Adapter's live entity state.
package snapshot

import (
	"context"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// Builder derives Snapshots from an Agent Adapter. It always calls the
// predicate-based FindBlocks scan API internally (Open Question #1),
// never a name-only variant, so there is a single code path for nearby
// resource/POI discovery.
type Builder struct {
	agentID       string
	resourceKinds []string
	poiKinds      []string
}

// NewBuilder constructs a Builder for agentID. resourceKinds and poiKinds
// name the block types the builder scans for when populating
// nearby_summary.resources / points_of_interest.
func NewBuilder(agentID string, resourceKinds, poiKinds []string) *Builder {
	return &Builder{agentID: agentID, resourceKinds: resourceKinds, poiKinds: poiKinds}
}

// Build derives an immutable Snapshot from the adapter's current state.
func (b *Builder) Build(ctx context.Context, ag adapter.Agent, task worldstate.TaskContext, tick int64, phase worldstate.TimePhase) (worldstate.Snapshot, error) {
	timer := logging.StartTimer(logging.CategorySnapshot, "build")
	defer timer.Stop()

	state, err := ag.State(ctx)
	if err != nil {
		return worldstate.Snapshot{}, err
	}

	resources, err := b.scan(ctx, ag, b.resourceKinds, 8)
	if err != nil {
		return worldstate.Snapshot{}, err
	}
	poi, err := b.scan(ctx, ag, b.poiKinds, 6)
	if err != nil {
		return worldstate.Snapshot{}, err
	}

	hostiles := make([]worldstate.Sighting, 0, len(state.NearbyHostiles))
	for _, h := range state.NearbyHostiles {
		hostiles = append(hostiles, worldstate.Sighting{Type: h.Name, Distance: h.Distance, Position: h.Position})
	}

	inv := summarizeInventory(state.Inventory)

	player := worldstate.Player{
		Position:  state.Position,
		Dimension: state.Dimension,
		Health:    state.Health,
		Hunger:    state.Hunger,
		Effects:   state.Effects,
	}

	return worldstate.NewSnapshot(
		b.agentID,
		worldstate.GameTime{Tick: state.TimeOfDay, Phase: phase},
		player,
		inv,
		hostiles,
		resources,
		poi,
		task,
	), nil
}

// scan runs FindBlocks once per requested kind and merges results, the
// single code path Open Question #1 fixes the builder to.
func (b *Builder) scan(ctx context.Context, ag adapter.Agent, kinds []string, limit int) ([]worldstate.Sighting, error) {
	var out []worldstate.Sighting
	for _, kind := range kinds {
		target := kind
		sightings, err := ag.FindBlocks(ctx, func(name string) bool { return name == target }, limit)
		if err != nil {
			return nil, err
		}
		for _, s := range sightings {
			out = append(out, worldstate.Sighting{Type: s.Name, Distance: s.Distance, Position: s.Position})
		}
	}
	return out, nil
}

var toolKinds = []string{"pickaxe", "axe", "shovel", "sword", "hoe"}

func summarizeInventory(items map[string]int) worldstate.InventorySummary {
	tools := make(map[string]int)
	keyItems := make(map[string]int)
	blocks := 0
	food := 0

	for name, count := range items {
		switch {
		case isTool(name):
			tools[name] = count
		case isFood(name):
			food += count
			keyItems[name] = count
		case isBlock(name):
			blocks += count
		default:
			keyItems[name] = count
		}
	}

	return worldstate.InventorySummary{FoodTotal: food, Tools: tools, Blocks: blocks, KeyItems: keyItems}
}

func isTool(name string) bool {
	for _, k := range toolKinds {
		if hasSuffix(name, "_"+k) {
			return true
		}
	}
	return false
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

var foodItems = map[string]bool{
	"bread": true, "cooked_beef": true, "cooked_porkchop": true, "apple": true, "carrot": true,
}

func isFood(name string) bool { return foodItems[name] }

var blockSuffixes = []string{"_log", "_planks", "cobblestone", "stone", "dirt", "sand", "gravel"}

func isBlock(name string) bool {
	for _, suf := range blockSuffixes {
		if hasSuffix(name, suf) {
			return true
		}
	}
	return false
}
