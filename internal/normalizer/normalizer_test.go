package normalizer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/agentfleet/internal/subgoal"
)

func TestNormalize_AliasRewriting(t *testing.T) {
	plan := []subgoal.Subgoal{
		{Name: subgoal.Collect, Params: map[string]interface{}{"type": "stone", "amount": 10}},
	}
	res := Normalize(plan)
	require.Len(t, res.Subgoals, 1)
	assert.Equal(t, "stone", res.Subgoals[0].Params["block"])
	assert.Equal(t, 10, res.Subgoals[0].Params["count"])
	assert.Contains(t, res.Notes, "normalized_subgoal_0_collect")
}

func TestNormalize_DropsInvalidMandatoryField(t *testing.T) {
	plan := []subgoal.Subgoal{
		{Name: subgoal.Collect, Params: map[string]interface{}{"count": 10}},
	}
	res := Normalize(plan)
	assert.Empty(t, res.Subgoals)
	require.Len(t, res.Notes, 1)
}

func TestNormalize_UnknownSubgoalPassesThrough(t *testing.T) {
	plan := []subgoal.Subgoal{
		{Name: subgoal.CombatEngage, Params: map[string]interface{}{"max_targets": 2}},
	}
	res := Normalize(plan)
	require.Len(t, res.Subgoals, 1)
	assert.Equal(t, subgoal.CombatEngage, res.Subgoals[0].Name)
}

func TestNormalize_GotoNestedLocation(t *testing.T) {
	plan := []subgoal.Subgoal{
		{Name: subgoal.Goto, Params: map[string]interface{}{"location": map[string]interface{}{"x": 1.0, "y": 2.0, "z": 3.0}}},
	}
	res := Normalize(plan)
	require.Len(t, res.Subgoals, 1)
	assert.Equal(t, 1, res.Subgoals[0].Params["x"])
	assert.Equal(t, 2, res.Subgoals[0].Params["range"])
}

func TestNormalize_Idempotent(t *testing.T) {
	plan := []subgoal.Subgoal{
		{Name: subgoal.Collect, Params: map[string]interface{}{"type": "stone", "amount": 10}},
	}
	once := Normalize(plan).Subgoals
	twice := Normalize(once).Subgoals
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("normalize(normalize(plan)) mismatch (-once +twice):\n%s", diff)
	}
}
