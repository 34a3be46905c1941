package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleetcore/agentfleet/internal/subgoal"
)

// subgoalNameList renders the closed SUBGOAL_NAMES set in a fixed order so
// the prompt text is stable across calls.
var subgoalNameOrder = []subgoal.Name{
	subgoal.Explore, subgoal.Goto, subgoal.GotoNearest, subgoal.Collect,
	subgoal.Craft, subgoal.Smelt, subgoal.Deposit, subgoal.Withdraw,
	subgoal.BuildBlueprint, subgoal.CombatEngage, subgoal.CombatGuard,
}

func subgoalNameList() string {
	names := make([]string, len(subgoalNameOrder))
	for i, n := range subgoalNameOrder {
		names[i] = string(n)
	}
	return strings.Join(names, ", ")
}

// paramRules is the stable parameter key guidance included in every prompt
// so the model emits canonical shapes (the Normalizer still rewrites
// aliases, but a compliant model reduces note volume and reprompt churn).
const paramRules = `Parameter key rules:
- collect: {block (string), count (int >= 1)}
- goto_nearest: {block (string), max_distance (int > 0, default 48)}
- craft: {item (string), count (int >= 1)}
- withdraw: {item (string), count (int >= 1)}
- smelt: {input (string), count (int >= 1), fuel (string, optional)}
- goto: {x, y, z (ints), range (int >= 1, default 2)}
- explore, deposit, build_blueprint, combat_engage, combat_guard: pass whatever
  parameters your task context indicates; unrecognized subgoal names pass
  through unchanged.`

// executionSemantics is the stable execution-model text included in every
// prompt, so the model understands subgoals run sequentially with retries
// and locking it cannot see directly.
const executionSemantics = `Execution semantics: subgoals run in the order you list them. Each one may
retry on transient failure (pathfinding, missing resources, hostiles) up to
a bounded limit before the plan is abandoned and replanned. Resource and
storage access may be briefly locked by other agents; a subgoal that meets
a locked resource fails without a retry and the plan is replanned. You do
not control timing or exact retry counts.`

// reasoningProtocol is the stable four-step internal reasoning protocol
// text reproduced verbatim in every prompt.
const reasoningProtocol = `Before emitting subgoals, reason through these four steps internally (do
not include this reasoning in your JSON output):
1. Build a projected inventory from the request's snapshot and history.
2. Validate preconditions for each subgoal you intend to emit (tools
   owned, recipes known, targets resolvable).
3. Prepend any missing prerequisites (tools, crafting surfaces,
   ingredients) ahead of the subgoal that needs them.
4. Re-simulate the plan against your projected inventory to confirm every
   step's preconditions are satisfied by the time it runs.`

// BuildPrompt constructs the initial planner prompt: the stable contract
// text plus the full request payload as JSON.
func BuildPrompt(req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("planner: marshaling request: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the planning module for an autonomous game-client agent.\n\n")
	fmt.Fprintf(&b, "Allowed subgoal names (closed set): %s\n\n", subgoalNameList())
	fmt.Fprintf(&b, "%s\n\n", paramRules)
	fmt.Fprintf(&b, "%s\n\n", executionSemantics)
	fmt.Fprintf(&b, "%s\n\n", reasoningProtocol)
	fmt.Fprintf(&b, "Respond with ONLY a JSON object of the shape:\n")
	fmt.Fprintf(&b, `{"next_goal": string, "subgoals": [{"name": string, "params": object}], "risk_flags": [string], "constraints": object}`)
	fmt.Fprintf(&b, "\n\nRequest payload:\n%s\n", string(payload))
	return b.String(), nil
}

// BuildRepairPrompt constructs the reprompt text: the prior subgoals, the
// guard-adjusted subgoals, and up to 24 guard notes.
func BuildRepairPrompt(req Request, prior, guarded []subgoal.Subgoal, notes []string) (string, error) {
	base, err := BuildPrompt(req)
	if err != nil {
		return "", err
	}

	priorJSON, err := json.Marshal(prior)
	if err != nil {
		return "", fmt.Errorf("planner: marshaling prior subgoals: %w", err)
	}
	guardedJSON, err := json.Marshal(guarded)
	if err != nil {
		return "", fmt.Errorf("planner: marshaling guarded subgoals: %w", err)
	}

	truncatedNotes := notes
	if len(truncatedNotes) > 24 {
		truncatedNotes = truncatedNotes[:24]
	}

	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\n\nYour previous plan was rewritten because it was not feasible given the\n")
	fmt.Fprintf(&b, "current inventory and surroundings. Previous subgoals:\n%s\n\n", string(priorJSON))
	fmt.Fprintf(&b, "Feasibility-guard-adjusted subgoals:\n%s\n\n", string(guardedJSON))
	fmt.Fprintf(&b, "Guard notes (up to 24):\n")
	for _, n := range truncatedNotes {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	fmt.Fprintf(&b, "\nEmit a corrected plan that is already feasible, in the same JSON shape as before.\n")
	return b.String(), nil
}
