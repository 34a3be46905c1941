package subgoal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	assert.True(t, Valid(Goto))
	assert.False(t, Valid(Name("teleport")))
}

func TestSubgoal_Equal(t *testing.T) {
	a := Subgoal{Name: Goto, Params: map[string]interface{}{"x": 1}, SuccessCriteria: map[string]interface{}{"arrived": true}}
	b := Subgoal{Name: Goto, Params: map[string]interface{}{"x": 1}, SuccessCriteria: map[string]interface{}{"arrived": true}}
	assert.True(t, a.Equal(b))

	c := Subgoal{Name: Goto, Params: map[string]interface{}{"x": 2}}
	assert.False(t, a.Equal(c))

	d := Subgoal{Name: Collect, Params: map[string]interface{}{"x": 1}}
	assert.False(t, a.Equal(d))
}

func TestSubgoal_Equal_IgnoresRiskFlagsAndConstraints(t *testing.T) {
	a := Subgoal{Name: Goto, Params: map[string]interface{}{"x": 1}, RiskFlags: []string{"night"}}
	b := Subgoal{Name: Goto, Params: map[string]interface{}{"x": 1}, Constraints: map[string]interface{}{"avoid": "lava"}}
	assert.True(t, a.Equal(b))
}

func TestSubgoal_Equal_NestedMaps(t *testing.T) {
	a := Subgoal{Name: Craft, Params: map[string]interface{}{"nested": map[string]interface{}{"a": 1}}}
	b := Subgoal{Name: Craft, Params: map[string]interface{}{"nested": map[string]interface{}{"a": 1}}}
	assert.True(t, a.Equal(b))

	c := Subgoal{Name: Craft, Params: map[string]interface{}{"nested": map[string]interface{}{"a": 2}}}
	assert.False(t, a.Equal(c))
}

func TestSubgoal_Clone_DeepCopiesParams(t *testing.T) {
	orig := Subgoal{
		Name:      Craft,
		Params:    map[string]interface{}{"item": "pickaxe", "nested": map[string]interface{}{"a": 1}},
		RiskFlags: []string{"night"},
	}
	clone := orig.Clone()
	clone.Params["item"] = "shovel"
	clone.Params["nested"].(map[string]interface{})["a"] = 2
	clone.RiskFlags[0] = "mutated"

	assert.Equal(t, "pickaxe", orig.Params["item"])
	assert.Equal(t, 1, orig.Params["nested"].(map[string]interface{})["a"])
	assert.Equal(t, "night", orig.RiskFlags[0])
}

func TestRuntimeSubgoal_Retry(t *testing.T) {
	rt := NewRuntime(Subgoal{Name: Goto}, 1000)
	assert.Equal(t, 0, rt.RetryCount)

	retried := rt.Retry(2000, 2500)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, int64(2500), retried.NotBeforeMs)
	assert.NotEqual(t, rt.ID, retried.ID)

	twice := retried.Retry(3000, 3500)
	assert.Equal(t, 2, twice.RetryCount)
}

func TestCanRetryFailure(t *testing.T) {
	assert.True(t, CanRetryFailure(PathfindFailed))
	assert.True(t, CanRetryFailure(ResourceNotFound))
	assert.False(t, CanRetryFailure(DependsOnItem))
	assert.False(t, CanRetryFailure(NoToolAvailable))
	assert.False(t, CanRetryFailure(BotDied))
}

func TestRetryLimitFor(t *testing.T) {
	assert.Equal(t, 3+4, RetryLimitFor(PathfindFailed, 3))
	assert.Equal(t, 3+0, RetryLimitFor(DependsOnItem, 3))
	assert.Equal(t, 3+2, RetryLimitFor(StuckTimeout, 3))
}

func TestSuccessAndFailure(t *testing.T) {
	s := Success(map[string]interface{}{"x": 1}, nil)
	assert.True(t, s.IsSuccess())
	assert.Equal(t, OutcomeSuccess, s.Outcome)

	f := Failure(PathfindFailed, "no path", true)
	assert.False(t, f.IsSuccess())
	assert.Equal(t, PathfindFailed, f.ErrorCode)
	assert.True(t, f.Retryable)
	assert.Equal(t, "no path", f.ErrorDetails)
}
