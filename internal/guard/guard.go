// Package guard implements the Feasibility Guard (§4.5): rewrites a
// normalized plan against the game-data catalog and a snapshot, expanding
// unresolved collect/craft targets into dependency-correct acquisition
// subplans, and the Autonomous Progression Plan the fallback planner uses.
package guard

import (
	"fmt"
	"math"
	"sort"

	"github.com/fleetcore/agentfleet/internal/catalog"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

const maxAcquisitionDepth = 8
const workbenchProximityUnits = 8.0

// Result is the guard's output: the (possibly expanded) plan plus
// human-readable notes.
type Result struct {
	Subgoals []subgoal.Subgoal
	Notes    []string
}

// Guard applies the dependency planner against an injected catalog.
type Guard struct {
	cat catalog.Catalog
}

// New constructs a Guard over cat.
func New(cat catalog.Catalog) *Guard {
	return &Guard{cat: cat}
}

// seedProjected builds the initial projected inventory as a value copy of
// snapshot.inventory_summary.key_items ∪ tools (§4.5), never a shared
// reference the guard could leak mutations through.
func seedProjected(snap worldstate.Snapshot) map[string]int {
	projected := make(map[string]int, len(snap.InventorySummary.KeyItems)+len(snap.InventorySummary.Tools))
	for item, n := range snap.InventorySummary.KeyItems {
		projected[item] += n
	}
	for item, n := range snap.InventorySummary.Tools {
		projected[item] += n
	}
	return projected
}

// Apply runs rules 1-5 in order over plan and returns the rewritten
// sequence. Equivalent inputs always produce an equal output
// (guard(guard(plan,snap),snap) = guard(plan,snap)), and projected
// inventory counts never decrease across the run.
func (g *Guard) Apply(plan []subgoal.Subgoal, snap worldstate.Snapshot) Result {
	timer := logging.StartTimer(logging.CategoryGuard, "apply")
	defer timer.Stop()

	projected := seedProjected(snap)
	var kept []subgoal.Subgoal
	var notes []string

	appendKept := func(sg subgoal.Subgoal) {
		kept = append(kept, sg)
		applyProjectedOutcome(sg, projected, g.cat)
	}

	for i, sg := range plan {
		switch sg.Name {
		case subgoal.Collect, subgoal.GotoNearest:
			g.resolveBlockTarget(sg, i, projected, snap, appendKept, &notes)
		case subgoal.Craft:
			g.resolveCraft(sg, i, projected, snap, appendKept, &notes)
		default:
			appendKept(sg)
		}
	}

	deduped := dedupeAdjacent(kept)
	return Result{Subgoals: deduped, Notes: notes}
}

// applyProjectedOutcome implements rule 4: craft/withdraw(item,count) adds
// count projected; collect(block,count) adds count of the block's primary
// dropped item (falling back to the target name itself if unknown).
func applyProjectedOutcome(sg subgoal.Subgoal, projected map[string]int, cat catalog.Catalog) {
	switch sg.Name {
	case subgoal.Craft, subgoal.Withdraw:
		item, _ := sg.Params["item"].(string)
		count, _ := toInt(sg.Params["count"])
		if item != "" {
			projected[item] += count
		}
	case subgoal.Collect:
		block, _ := sg.Params["block"].(string)
		count, _ := toInt(sg.Params["count"])
		if block == "" {
			return
		}
		drop := block
		if spec, ok := cat.ResolveBlock(block); ok && spec.PrimaryDrop != "" {
			drop = spec.PrimaryDrop
		}
		projected[drop] += count
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Round(n)), true
	}
	return 0, false
}

// resolveBlockTarget implements rules 1 and 2 for collect/goto_nearest.
func (g *Guard) resolveBlockTarget(sg subgoal.Subgoal, index int, projected map[string]int, snap worldstate.Snapshot, appendKept func(subgoal.Subgoal), notes *[]string) {
	target, _ := sg.Params["block"].(string)
	spec, resolved := g.cat.ResolveBlock(target)

	if !resolved {
		// Rule 1: target resolves to no block.
		if len(g.cat.RecipesFor(target)) > 0 {
			count := 1
			if sg.Name == subgoal.Collect {
				count, _ = toInt(sg.Params["count"])
				if count < 1 {
					count = 1
				}
			}
			plan, planNotes := g.acquire(target, count, projected, snap, 0, map[string]bool{})
			*notes = append(*notes, planNotes...)
			for _, s := range plan {
				appendKept(s)
			}
			return
		}
		*notes = append(*notes, fmt.Sprintf("subgoal_%d_%s_unresolved_explore_fallback:%s", index, sg.Name, target))
		appendKept(subgoal.Subgoal{
			Name:   subgoal.Explore,
			Params: map[string]interface{}{"radius": 28, "return_to_base": false, "resource_hint": target},
		})
		return
	}

	// Rule 2: resolved block; ensure a qualifying harvest tool is owned.
	if spec.RequiredToolKind != "" && !projectedHasQualifyingTool(projected, g.cat, spec.RequiredToolKind, spec.MinTier) {
		toolItem, ok := g.cat.ToolFor(spec.RequiredToolKind, spec.MinTier)
		if ok {
			plan, planNotes := g.acquire(toolItem, 1, projected, snap, 0, map[string]bool{})
			*notes = append(*notes, planNotes...)
			for _, s := range plan {
				appendKept(s)
			}
		}
	}

	canonical := sg.Clone()
	canonical.Params["block"] = spec.Name
	appendKept(canonical)
}

// resolveCraft implements rule 3.
func (g *Guard) resolveCraft(sg subgoal.Subgoal, index int, projected map[string]int, snap worldstate.Snapshot, appendKept func(subgoal.Subgoal), notes *[]string) {
	item, _ := sg.Params["item"].(string)
	count, _ := toInt(sg.Params["count"])
	if count < 1 {
		count = 1
	}

	recipe, hasRecipe := g.selectRecipe(item, count, projected, snap)
	if !hasRecipe {
		if sources := g.cat.SourcesFor(item); len(sources) > 0 {
			plan, planNotes := g.acquire(item, count, projected, snap, 0, map[string]bool{})
			*notes = append(*notes, planNotes...)
			for _, s := range plan {
				appendKept(s)
			}
			return
		}
		*notes = append(*notes, fmt.Sprintf("subgoal_%d_craft_unresolved_explore_fallback:%s", index, item))
		appendKept(subgoal.Subgoal{
			Name:   subgoal.Explore,
			Params: map[string]interface{}{"radius": 28, "return_to_base": false, "resource_hint": item},
		})
		return
	}

	if recipe.NeedsWorkbench() && !hasWorkbenchAccess(projected, snap) {
		plan, planNotes := g.acquire("crafting_table", 1, projected, snap, 0, map[string]bool{})
		*notes = append(*notes, planNotes...)
		for _, s := range plan {
			appendKept(s)
		}
	}

	shortage := count - projected[item]
	if shortage > 0 {
		batches := ceilDiv(shortage, recipe.ResultCount)
		for _, ing := range recipe.Ingredients {
			neededQty := batches * ing.Count
			haveQty := projected[ing.Item]
			ingShortage := neededQty - haveQty
			if ingShortage > 0 {
				plan, planNotes := g.acquire(ing.Item, ingShortage, projected, snap, 0, map[string]bool{})
				*notes = append(*notes, planNotes...)
				for _, s := range plan {
					appendKept(s)
				}
			}
		}
	}

	canonical := sg.Clone()
	canonical.Params["item"] = item
	canonical.Params["count"] = count
	canonical.Params["table_required"] = recipe.NeedsWorkbench()
	appendKept(canonical)
}

// selectRecipe implements spec.md §4.5 rule 3's top-level recipe-selection
// formula: among every recipe RecipesFor(item) knows, pick the one that
// minimizes missing_ingredient_units + (3 if it needs a workbench the agent
// can't currently reach, else 0). Ties keep RecipesFor's deterministic
// ordering (first minimal candidate wins).
func (g *Guard) selectRecipe(item string, count int, projected map[string]int, snap worldstate.Snapshot) (catalog.Recipe, bool) {
	recipes := g.cat.RecipesFor(item)
	if len(recipes) == 0 {
		return catalog.Recipe{}, false
	}

	shortage := count - projected[item]
	if shortage < 0 {
		shortage = 0
	}

	best := recipes[0]
	bestScore := recipeSelectionScore(best, shortage, projected, snap)
	for _, r := range recipes[1:] {
		score := recipeSelectionScore(r, shortage, projected, snap)
		if score < bestScore {
			best = r
			bestScore = score
		}
	}
	return best, true
}

// recipeSelectionScore computes missing_ingredient_units for r at the given
// shortage, plus a +3 penalty when r needs a 3x3 workbench the agent has
// neither projected-owned nor nearby.
func recipeSelectionScore(r catalog.Recipe, shortage int, projected map[string]int, snap worldstate.Snapshot) int {
	batches := ceilDiv(shortage, r.ResultCount)
	missing := 0
	for _, ing := range r.Ingredients {
		needed := batches * ing.Count
		have := projected[ing.Item]
		if needed > have {
			missing += needed - have
		}
	}
	if r.NeedsWorkbench() && !hasWorkbenchAccess(projected, snap) {
		missing += 3
	}
	return missing
}

// acquire is the recursive acquisition planner used by rules 1-3: depth
// limit 8, a stack-based cycle guard, recipe-minimization for craftables,
// nearest-actionable-source selection for raw gatherables.
func (g *Guard) acquire(item string, shortage int, projected map[string]int, snap worldstate.Snapshot, depth int, stack map[string]bool) ([]subgoal.Subgoal, []string) {
	if shortage <= 0 {
		return nil, nil
	}
	if depth >= maxAcquisitionDepth || stack[item] {
		return []subgoal.Subgoal{{
			Name:   subgoal.Explore,
			Params: map[string]interface{}{"radius": 28, "return_to_base": false, "resource_hint": item},
		}}, []string{fmt.Sprintf("acquisition_depth_or_cycle_guard_tripped:%s", item)}
	}
	stack[item] = true
	defer delete(stack, item)

	var plan []subgoal.Subgoal
	var notes []string

	append1 := func(sg subgoal.Subgoal) {
		plan = append(plan, sg)
		applyProjectedOutcome(sg, projected, g.cat)
	}

	if recipe, ok := g.selectRecipe(item, shortage+projected[item], projected, snap); ok {
		if recipe.NeedsWorkbench() && !hasWorkbenchAccess(projected, snap) {
			wbPlan, wbNotes := g.acquire("crafting_table", 1, projected, snap, depth+1, stack)
			notes = append(notes, wbNotes...)
			for _, s := range wbPlan {
				append1(s)
			}
		}

		batches := ceilDiv(shortage, recipe.ResultCount)
		for _, ing := range recipe.Ingredients {
			neededQty := batches * ing.Count
			haveQty := projected[ing.Item]
			ingShortage := neededQty - haveQty
			if ingShortage > 0 {
				ingPlan, ingNotes := g.acquire(ing.Item, ingShortage, projected, snap, depth+1, stack)
				notes = append(notes, ingNotes...)
				for _, s := range ingPlan {
					append1(s)
				}
			}
		}

		append1(subgoal.Subgoal{Name: subgoal.Craft, Params: map[string]interface{}{"item": item, "count": shortage, "table_required": recipe.NeedsWorkbench()}})
		return plan, notes
	}

	sources := g.cat.SourcesFor(item)
	if len(sources) == 0 {
		return []subgoal.Subgoal{{
			Name:   subgoal.Explore,
			Params: map[string]interface{}{"radius": 28, "return_to_base": false, "resource_hint": item},
		}}, []string{fmt.Sprintf("no_source_for_item_explore_fallback:%s", item)}
	}

	best := pickBestSource(sources, projected, snap, g.cat)
	if best == nil {
		return []subgoal.Subgoal{{
			Name:   subgoal.Explore,
			Params: map[string]interface{}{"radius": 28, "return_to_base": false, "resource_hint": item},
		}}, []string{fmt.Sprintf("no_actionable_source_explore_fallback:%s", item)}
	}

	append1(subgoal.Subgoal{Name: subgoal.GotoNearest, Params: map[string]interface{}{"block": best.BlockName, "max_distance": 48}})
	append1(subgoal.Subgoal{Name: subgoal.Collect, Params: map[string]interface{}{"block": best.BlockName, "count": shortage}})
	return plan, notes
}

// pickBestSource selects the nearest resolvable source whose required tool
// is already projected-owned, preferring actionable (visible + tool-ready)
// candidates, then distance, then name.
func pickBestSource(sources []catalog.SourceBlock, projected map[string]int, snap worldstate.Snapshot, cat catalog.Catalog) *catalog.SourceBlock {
	type candidate struct {
		src        catalog.SourceBlock
		actionable bool
		distance   float64
	}

	cands := make([]candidate, 0, len(sources))
	for _, src := range sources {
		toolReady := src.RequiredToolKind == "" || projectedHasQualifyingTool(projected, cat, src.RequiredToolKind, src.MinTier)
		dist, visible := distanceToResource(snap, src.BlockName)
		cands = append(cands, candidate{src: src, actionable: toolReady && visible, distance: dist})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].actionable != cands[j].actionable {
			return cands[i].actionable
		}
		if cands[i].distance != cands[j].distance {
			return cands[i].distance < cands[j].distance
		}
		return cands[i].src.BlockName < cands[j].src.BlockName
	})

	if len(cands) == 0 {
		return nil
	}
	out := cands[0].src
	return &out
}

func distanceToResource(snap worldstate.Snapshot, blockName string) (float64, bool) {
	for _, r := range snap.NearbySummary.Resources {
		if r.Type == blockName {
			return r.Distance, true
		}
	}
	return math.MaxFloat64, false
}

// projectedHasQualifyingTool reports whether the projected inventory owns a
// tool of kind at tier >= minTier, per the wooden<stone<iron<diamond
// <netherite ordering (golden ranked last, so never auto-selected as the
// minimal qualifying tier).
func projectedHasQualifyingTool(projected map[string]int, cat catalog.Catalog, kind string, minTier catalog.Tier) bool {
	for _, tier := range cat.TiersAscending(kind) {
		if tier < minTier || tier == catalog.TierGold {
			continue
		}
		name, ok := cat.ToolFor(kind, tier)
		if ok && projected[name] > 0 {
			return true
		}
	}
	return false
}

func hasWorkbenchAccess(projected map[string]int, snap worldstate.Snapshot) bool {
	if projected["crafting_table"] > 0 {
		return true
	}
	for _, s := range snap.NearbySummary.PointsOfInterest {
		if s.Type == "crafting_table" && s.Distance <= workbenchProximityUnits {
			return true
		}
	}
	for _, s := range snap.NearbySummary.Resources {
		if s.Type == "crafting_table" && s.Distance <= workbenchProximityUnits {
			return true
		}
	}
	return false
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return int(math.Ceil(float64(a) / float64(b)))
}

func dedupeAdjacent(in []subgoal.Subgoal) []subgoal.Subgoal {
	if len(in) == 0 {
		return in
	}
	out := make([]subgoal.Subgoal, 0, len(in))
	out = append(out, in[0])
	for i := 1; i < len(in); i++ {
		if in[i].Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, in[i])
	}
	return out
}
