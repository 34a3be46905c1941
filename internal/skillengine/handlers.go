package skillengine

import (
	"context"
	"fmt"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// registerDefaultHandlers wires the deterministic handler set for every
// name in subgoal.Names, built only on the Agent Adapter's narrow
// capability surface: the engine never reaches past the adapter.
func (e *Engine) registerDefaultHandlers() {
	e.handlers[subgoal.Explore] = e.handleExplore
	e.handlers[subgoal.Goto] = handleGoto
	e.handlers[subgoal.GotoNearest] = handleGotoNearest
	e.handlers[subgoal.Collect] = handleCollect
	e.handlers[subgoal.Craft] = handleCraft
	e.handlers[subgoal.Smelt] = handleSmelt
	e.handlers[subgoal.Deposit] = e.handleDeposit
	e.handlers[subgoal.Withdraw] = e.handleWithdraw
	e.handlers[subgoal.BuildBlueprint] = handleBuildBlueprint
	e.handlers[subgoal.CombatEngage] = handleCombatEngage
	e.handlers[subgoal.CombatGuard] = handleCombatGuard
}

func paramInt(params map[string]interface{}, key string, def int) int {
	n, ok := toInt(params[key])
	if !ok {
		return def
	}
	return n
}

func paramString(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func paramBool(params map[string]interface{}, key string) bool {
	b, _ := params[key].(bool)
	return b
}

// compassOffsets gives explore a fixed, deterministic set of directions so
// repeated explore calls with the same hint fan out instead of retreading
// the same point, without reaching for nondeterministic randomness (§1:
// "the core must remain deterministic given its inputs").
var compassOffsets = [8][2]float64{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

func explorePick(hint string, radius float64) (float64, float64) {
	h := 0
	for _, c := range hint {
		h = h*31 + int(c)
	}
	if h < 0 {
		h = -h
	}
	d := compassOffsets[h%8]
	return d[0] * radius, d[1] * radius
}

func (e *Engine) handleExplore(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	radius := float64(paramInt(sg.Params, "radius", 32))
	hint := paramString(sg.Params, "resource_hint")

	if hint != "" {
		if sight, found, err := ag.FindNearestBlock(ctx, hint); err == nil && found {
			if err := ag.PathfindTo(ctx, sight.Position, 2); err != nil {
				return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
			}
			return subgoal.Success(map[string]interface{}{"found": hint, "distance": sight.Distance}, nil)
		}
	}

	state, err := ag.State(ctx)
	if err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	dx, dz := explorePick(hint, radius)
	target := worldstate.Position{X: state.Position.X + dx, Y: state.Position.Y, Z: state.Position.Z + dz}
	if err := ag.PathfindTo(ctx, target, 3); err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"explored_radius": radius, "resource_hint": hint}, nil)
}

func handleGoto(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	x := paramInt(sg.Params, "x", 0)
	y := paramInt(sg.Params, "y", 64)
	z := paramInt(sg.Params, "z", 0)
	rng := paramInt(sg.Params, "range", 2)

	pos := worldstate.Position{X: float64(x), Y: float64(y), Z: float64(z)}
	if err := ag.PathfindTo(ctx, pos, rng); err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"x": x, "y": y, "z": z}, nil)
}

func handleGotoNearest(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	block := paramString(sg.Params, "block")
	if block == "" {
		return subgoal.Failure(subgoal.ResourceNotFound, "goto_nearest missing block target", false)
	}
	sight, found, err := ag.FindNearestBlock(ctx, block)
	if err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	if !found {
		return subgoal.Failure(subgoal.ResourceNotFound, fmt.Sprintf("no %s nearby", block), true)
	}
	maxDistance := float64(paramInt(sg.Params, "max_distance", 48))
	if sight.Distance > maxDistance {
		return subgoal.Failure(subgoal.ResourceNotFound, fmt.Sprintf("%s found but beyond max_distance", block), true)
	}
	if err := ag.PathfindTo(ctx, sight.Position, 2); err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"block": block, "distance": sight.Distance}, nil)
}

func handleCollect(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	block := paramString(sg.Params, "block")
	count := paramInt(sg.Params, "count", 1)
	if block == "" || count < 1 {
		return subgoal.Failure(subgoal.ResourceNotFound, "collect missing block/count", false)
	}

	collected := 0
	for i := 0; i < count; i++ {
		sight, found, err := ag.FindNearestBlock(ctx, block)
		if err != nil {
			return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
		}
		if !found {
			break
		}
		if err := ag.PathfindTo(ctx, sight.Position, 1); err != nil {
			return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
		}
		if err := ag.Dig(ctx, sight.Position); err != nil {
			return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
		}
		collected++
	}

	if collected == 0 {
		return subgoal.Failure(subgoal.ResourceNotFound, fmt.Sprintf("no %s found to collect", block), true)
	}
	if collected < count {
		return subgoal.Failure(subgoal.ResourceNotFound, fmt.Sprintf("collected only %d/%d %s", collected, count, block), true)
	}
	return subgoal.Success(map[string]interface{}{"block": block, "collected": collected}, map[string]interface{}{"requested": count})
}

func handleCraft(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	item := paramString(sg.Params, "item")
	count := paramInt(sg.Params, "count", 1)
	if item == "" || count < 1 {
		return subgoal.Failure(subgoal.DependsOnItem, "craft missing item/count", false)
	}
	tableRequired := paramBool(sg.Params, "table_required")
	if err := ag.CraftRecipe(ctx, item, count, tableRequired); err != nil {
		return subgoal.Failure(subgoal.DependsOnItem, err.Error(), false)
	}
	return subgoal.Success(map[string]interface{}{"item": item, "count": count}, nil)
}

func handleSmelt(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	input := paramString(sg.Params, "input")
	count := paramInt(sg.Params, "count", 1)
	if input == "" || count < 1 {
		return subgoal.Failure(subgoal.DependsOnItem, "smelt missing input/count", false)
	}
	sight, found, err := ag.FindNearestBlock(ctx, "furnace")
	if err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	if !found {
		return subgoal.Failure(subgoal.ResourceNotFound, "no furnace nearby", true)
	}
	if err := ag.PathfindTo(ctx, sight.Position, 2); err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	if err := ag.OpenContainer(ctx, sight.Position); err != nil {
		return subgoal.Failure(subgoal.DependsOnItem, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"input": input, "count": count}, nil)
}

func (e *Engine) handleDeposit(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	if err := ag.PathfindTo(ctx, e.basePos, 2); err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	if err := ag.OpenContainer(ctx, e.basePos); err != nil {
		return subgoal.Failure(subgoal.InventoryFull, err.Error(), true)
	}
	strategy := paramString(sg.Params, "strategy")
	if strategy == "" {
		strategy = "all_non_essential"
	}
	return subgoal.Success(map[string]interface{}{"strategy": strategy}, nil)
}

func (e *Engine) handleWithdraw(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	item := paramString(sg.Params, "item")
	count := paramInt(sg.Params, "count", 1)
	if item == "" || count < 1 {
		return subgoal.Failure(subgoal.DependsOnItem, "withdraw missing item/count", false)
	}
	if err := ag.PathfindTo(ctx, e.basePos, 2); err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	if err := ag.OpenContainer(ctx, e.basePos); err != nil {
		return subgoal.Failure(subgoal.DependsOnItem, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"item": item, "count": count}, nil)
}

func handleBuildBlueprint(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	x := paramInt(sg.Params, "x", 0)
	y := paramInt(sg.Params, "y", 64)
	z := paramInt(sg.Params, "z", 0)
	heldItem := paramString(sg.Params, "item")
	pos := worldstate.Position{X: float64(x), Y: float64(y), Z: float64(z)}

	if err := ag.PathfindTo(ctx, pos, 3); err != nil {
		return subgoal.Failure(subgoal.PathfindFailed, err.Error(), true)
	}
	if heldItem != "" {
		if err := ag.Equip(ctx, heldItem); err != nil {
			return subgoal.Failure(subgoal.PlacementFailed, err.Error(), true)
		}
	}
	if err := ag.PlaceBlock(ctx, pos, heldItem); err != nil {
		return subgoal.Failure(subgoal.PlacementFailed, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"x": x, "y": y, "z": z, "item": heldItem}, nil)
}

func handleCombatEngage(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	combat := ag.Combat()
	if combat == nil {
		return subgoal.Failure(subgoal.NoToolAvailable, "no combat plugin available", false)
	}
	maxTargets := paramInt(sg.Params, "max_targets", 1)
	maxDistance := float64(paramInt(sg.Params, "max_distance", 16))
	if err := combat.Engage(ctx, maxTargets, maxDistance); err != nil {
		return subgoal.Failure(subgoal.CombatLostTarget, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"max_targets": maxTargets, "max_distance": maxDistance}, nil)
}

func handleCombatGuard(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	combat := ag.Combat()
	if combat == nil {
		return subgoal.Failure(subgoal.NoToolAvailable, "no combat plugin available", false)
	}
	radius := float64(paramInt(sg.Params, "radius", 10))
	duration := int64(paramInt(sg.Params, "duration", 5000))
	if err := combat.Guard(ctx, radius, duration); err != nil {
		return subgoal.Failure(subgoal.CombatLostTarget, err.Error(), true)
	}
	return subgoal.Success(map[string]interface{}{"radius": radius, "duration": duration}, nil)
}
