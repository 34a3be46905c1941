// Package normalizer implements the Subgoal Normalizer (§4.4): canonicalizes
// LLM output parameter aliases into the fixed shapes the guard and skill
// engine expect.
package normalizer

import (
	"fmt"
	"math"

	"github.com/fleetcore/agentfleet/internal/subgoal"
)

// Result is the normalizer's output: the canonicalized plan plus
// human-readable notes describing drops/rewrites.
type Result struct {
	Subgoals []subgoal.Subgoal
	Notes    []string
}

var collectAliases = []string{"item", "block", "resource", "resource_type", "type"}
var countAliases = []string{"count", "amount", "qty"}

// Normalize canonicalizes a raw plan. Unrecognized subgoal names pass
// through unchanged; invalid mandatory fields drop the entry and emit a
// note. Normalize(Normalize(plan)) = Normalize(plan) since every rewrite
// converges on the canonical shape in one pass.
func Normalize(plan []subgoal.Subgoal) Result {
	res := Result{}
	for i, sg := range plan {
		normalized, note, dropped := normalizeOne(sg, i)
		if note != "" {
			res.Notes = append(res.Notes, note)
		}
		if dropped {
			continue
		}
		res.Subgoals = append(res.Subgoals, normalized)
	}
	return res
}

func normalizeOne(sg subgoal.Subgoal, index int) (subgoal.Subgoal, string, bool) {
	switch sg.Name {
	case subgoal.Collect:
		return normalizeCollect(sg, index)
	case subgoal.GotoNearest:
		return normalizeGotoNearest(sg, index)
	case subgoal.Craft:
		return normalizeCraftLike(sg, index, "item")
	case subgoal.Withdraw:
		return normalizeCraftLike(sg, index, "item")
	case subgoal.Smelt:
		return normalizeSmelt(sg, index)
	case subgoal.Goto:
		return normalizeGoto(sg, index)
	default:
		return sg, "", false
	}
}

func firstString(params map[string]interface{}, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func firstInt(params map[string]interface{}, keys []string) (int, bool) {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			if n, ok := toInt(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Round(n)), true
	default:
		return 0, false
	}
}

func normalizeCollect(sg subgoal.Subgoal, index int) (subgoal.Subgoal, string, bool) {
	block, ok := firstString(sg.Params, collectAliases)
	if !ok {
		return sg, fmt.Sprintf("dropped_subgoal_%d_collect: missing block/item alias", index), true
	}
	count, ok := firstInt(sg.Params, countAliases)
	if !ok || count < 1 {
		return sg, fmt.Sprintf("dropped_subgoal_%d_collect: missing or invalid count", index), true
	}

	out := sg.Clone()
	out.Params = map[string]interface{}{"block": block, "count": count}
	note := ""
	if _, exact := sg.Params["block"]; !exact || len(sg.Params) != 2 {
		note = fmt.Sprintf("normalized_subgoal_%d_collect", index)
	}
	return out, note, false
}

func normalizeGotoNearest(sg subgoal.Subgoal, index int) (subgoal.Subgoal, string, bool) {
	block, ok := firstString(sg.Params, collectAliases)
	if !ok {
		return sg, fmt.Sprintf("dropped_subgoal_%d_goto_nearest: missing block alias", index), true
	}
	maxDist, ok := firstInt(sg.Params, []string{"max_distance"})
	if !ok || maxDist <= 0 {
		maxDist = 48
	}
	out := sg.Clone()
	out.Params = map[string]interface{}{"block": block, "max_distance": maxDist}
	return out, "", false
}

func normalizeCraftLike(sg subgoal.Subgoal, index int, itemKey string) (subgoal.Subgoal, string, bool) {
	item, ok := firstString(sg.Params, []string{itemKey, "item", "block", "resource", "resource_type", "type"})
	if !ok {
		return sg, fmt.Sprintf("dropped_subgoal_%d_%s: missing item alias", index, sg.Name), true
	}
	count, ok := firstInt(sg.Params, countAliases)
	if !ok || count < 1 {
		return sg, fmt.Sprintf("dropped_subgoal_%d_%s: missing or invalid count", index, sg.Name), true
	}
	out := sg.Clone()
	out.Params = map[string]interface{}{"item": item, "count": count}
	return out, "", false
}

func normalizeSmelt(sg subgoal.Subgoal, index int) (subgoal.Subgoal, string, bool) {
	input, ok := firstString(sg.Params, []string{"input", "item", "block", "resource", "resource_type", "type"})
	if !ok {
		return sg, fmt.Sprintf("dropped_subgoal_%d_smelt: missing input alias", index), true
	}
	count, ok := firstInt(sg.Params, countAliases)
	if !ok || count < 1 {
		return sg, fmt.Sprintf("dropped_subgoal_%d_smelt: missing or invalid count", index), true
	}
	params := map[string]interface{}{"input": input, "count": count}
	if fuel, ok := firstString(sg.Params, []string{"fuel"}); ok {
		params["fuel"] = fuel
	}
	out := sg.Clone()
	out.Params = params
	return out, "", false
}

func normalizeGoto(sg subgoal.Subgoal, index int) (subgoal.Subgoal, string, bool) {
	params := sg.Params
	if loc, ok := params["location"].(map[string]interface{}); ok {
		params = loc
	}
	x, xok := firstInt(params, []string{"x"})
	y, yok := firstInt(params, []string{"y"})
	z, zok := firstInt(params, []string{"z"})
	if !xok || !yok || !zok {
		return sg, fmt.Sprintf("dropped_subgoal_%d_goto: missing x/y/z", index), true
	}
	rng, ok := firstInt(sg.Params, []string{"range"})
	if !ok || rng < 1 {
		rng = 2
	}
	out := sg.Clone()
	out.Params = map[string]interface{}{"x": x, "y": y, "z": z, "range": rng}
	return out, "", false
}
