package skillengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/lockmgr"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

type fakeAgent struct {
	pathErr    error
	craftErr   error
	sighting   adapter.BlockSighting
	sightFound bool
	sightErr   error
}

func newFakeAgent() *fakeAgent { return &fakeAgent{} }

func (f *fakeAgent) Events() <-chan adapter.ConnectionEvent { return nil }
func (f *fakeAgent) State(ctx context.Context) (adapter.EntityState, error) {
	return adapter.EntityState{Position: worldstate.Position{}}, nil
}
func (f *fakeAgent) FindBlocks(ctx context.Context, pred adapter.BlockPredicate, limit int) ([]adapter.BlockSighting, error) {
	return nil, nil
}
func (f *fakeAgent) FindNearestBlock(ctx context.Context, name string) (adapter.BlockSighting, bool, error) {
	return f.sighting, f.sightFound, f.sightErr
}
func (f *fakeAgent) PathfindTo(ctx context.Context, pos worldstate.Position, rangeUnits int) error {
	return f.pathErr
}
func (f *fakeAgent) LookAt(ctx context.Context, pos worldstate.Position) error { return nil }
func (f *fakeAgent) SetControlState(ctx context.Context, state adapter.ControlState, active bool) error {
	return nil
}
func (f *fakeAgent) ClearControls(ctx context.Context) error { return nil }
func (f *fakeAgent) Dig(ctx context.Context, pos worldstate.Position) error { return nil }
func (f *fakeAgent) PlaceBlock(ctx context.Context, pos worldstate.Position, heldItem string) error {
	return nil
}
func (f *fakeAgent) Equip(ctx context.Context, item string) error                     { return nil }
func (f *fakeAgent) OpenContainer(ctx context.Context, pos worldstate.Position) error { return nil }
func (f *fakeAgent) CraftRecipe(ctx context.Context, item string, count int, tableRequired bool) error {
	return f.craftErr
}
func (f *fakeAgent) Chat(ctx context.Context, message string) error { return nil }
func (f *fakeAgent) Quit(ctx context.Context) error                 { return nil }
func (f *fakeAgent) Combat() adapter.CombatPlugin                   { return nil }

func TestLockKeyFor(t *testing.T) {
	key, ok := lockKeyFor(subgoal.Subgoal{Name: subgoal.Collect, Params: map[string]interface{}{"block": "iron_ore"}})
	assert.True(t, ok)
	assert.Equal(t, "resource:iron_ore", key)

	_, ok = lockKeyFor(subgoal.Subgoal{Name: subgoal.Collect, Params: map[string]interface{}{}})
	assert.False(t, ok)

	key, ok = lockKeyFor(subgoal.Subgoal{Name: subgoal.BuildBlueprint, Params: map[string]interface{}{"x": 1, "y": 2, "z": 3}})
	assert.True(t, ok)
	assert.Equal(t, "build:1,2,3", key)

	_, ok = lockKeyFor(subgoal.Subgoal{Name: subgoal.BuildBlueprint, Params: map[string]interface{}{"x": 1}})
	assert.False(t, ok)

	key, ok = lockKeyFor(subgoal.Subgoal{Name: subgoal.Deposit, Params: nil})
	assert.True(t, ok)
	assert.Equal(t, "storage:base", key)

	key, ok = lockKeyFor(subgoal.Subgoal{Name: subgoal.Withdraw, Params: nil})
	assert.True(t, ok)
	assert.Equal(t, "storage:base", key)

	_, ok = lockKeyFor(subgoal.Subgoal{Name: subgoal.Goto, Params: nil})
	assert.False(t, ok)
}

func TestExecute_AcquiresAndReleasesLockForCollect(t *testing.T) {
	locks := lockmgr.New(15_000, nil)
	eng := New(locks, 5_000, worldstate.Position{})
	ag := newFakeAgent()
	ag.sightFound = true
	ag.sighting = adapter.BlockSighting{Position: worldstate.Position{X: 1}}

	sg := subgoal.Subgoal{Name: subgoal.Collect, Params: map[string]interface{}{"block": "iron_ore", "count": 1}}
	res := eng.Execute(context.Background(), "agent-1", ag, sg)

	assert.True(t, res.IsSuccess())
	_, held := locks.OwnerOf("resource:iron_ore", 0)
	assert.False(t, held, "lock must be released after Execute returns")
}

func TestExecute_LockContentionReturnsRetryableFailure(t *testing.T) {
	locks := lockmgr.New(15_000, nil)
	require.True(t, locks.Acquire("resource:iron_ore", "other-agent", time.Now().UnixMilli()))

	eng := New(locks, 5_000, worldstate.Position{})
	ag := newFakeAgent()
	sg := subgoal.Subgoal{Name: subgoal.Collect, Params: map[string]interface{}{"block": "iron_ore", "count": 1}}

	res := eng.Execute(context.Background(), "agent-1", ag, sg)
	assert.False(t, res.IsSuccess())
	assert.Equal(t, subgoal.DependsOnItem, res.ErrorCode)
	assert.True(t, res.Retryable)
}

func TestExecute_UnknownSubgoalFails(t *testing.T) {
	eng := New(lockmgr.New(15_000, nil), 5_000, worldstate.Position{})
	eng.handlers = map[subgoal.Name]Handler{}
	res := eng.Execute(context.Background(), "agent-1", newFakeAgent(), subgoal.Subgoal{Name: subgoal.Goto})
	assert.False(t, res.IsSuccess())
	assert.Equal(t, subgoal.DependsOnItem, res.ErrorCode)
}

func TestExecute_HandlerPanicRecovers(t *testing.T) {
	eng := New(lockmgr.New(15_000, nil), 5_000, worldstate.Position{})
	eng.Register(subgoal.Goto, func(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
		panic("boom")
	})
	res := eng.Execute(context.Background(), "agent-1", newFakeAgent(), subgoal.Subgoal{Name: subgoal.Goto})
	assert.False(t, res.IsSuccess())
	assert.False(t, res.Retryable)
}

func TestHandleGoto_PathfindFailureIsRetryable(t *testing.T) {
	ag := newFakeAgent()
	ag.pathErr = assertErr("no path")
	res := handleGoto(context.Background(), ag, subgoal.Subgoal{Name: subgoal.Goto, Params: map[string]interface{}{"x": 1, "y": 64, "z": 1}})
	assert.False(t, res.IsSuccess())
	assert.Equal(t, subgoal.PathfindFailed, res.ErrorCode)
	assert.True(t, res.Retryable)
}

func TestHandleGoto_Success(t *testing.T) {
	ag := newFakeAgent()
	res := handleGoto(context.Background(), ag, subgoal.Subgoal{Name: subgoal.Goto, Params: map[string]interface{}{"x": 5, "y": 70, "z": -3}})
	assert.True(t, res.IsSuccess())
	assert.Equal(t, 5, res.Details["x"])
}

func TestHandleCraft_PassesTableRequiredThrough(t *testing.T) {
	ag := newFakeAgent()
	sg := subgoal.Subgoal{Name: subgoal.Craft, Params: map[string]interface{}{"item": "pickaxe", "count": 1, "table_required": true}}
	res := handleCraft(context.Background(), ag, sg)
	assert.True(t, res.IsSuccess())

	ag.craftErr = assertErr("missing table")
	res = handleCraft(context.Background(), ag, sg)
	assert.False(t, res.IsSuccess())
	assert.Equal(t, subgoal.DependsOnItem, res.ErrorCode)
	assert.False(t, res.Retryable)
}

func TestHandleCraft_MissingItemFails(t *testing.T) {
	res := handleCraft(context.Background(), newFakeAgent(), subgoal.Subgoal{Name: subgoal.Craft, Params: map[string]interface{}{}})
	assert.False(t, res.IsSuccess())
	assert.False(t, res.Retryable)
}

func TestHandleGotoNearest_NotFoundIsRetryable(t *testing.T) {
	ag := newFakeAgent()
	ag.sightFound = false
	res := handleGotoNearest(context.Background(), ag, subgoal.Subgoal{Name: subgoal.GotoNearest, Params: map[string]interface{}{"block": "diamond_ore"}})
	assert.False(t, res.IsSuccess())
	assert.Equal(t, subgoal.ResourceNotFound, res.ErrorCode)
	assert.True(t, res.Retryable)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
