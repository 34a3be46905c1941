package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/catalog"
	"github.com/fleetcore/agentfleet/internal/config"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

type fakeAgent struct{}

func (fakeAgent) Events() <-chan adapter.ConnectionEvent { return nil }
func (fakeAgent) State(ctx context.Context) (adapter.EntityState, error) {
	return adapter.EntityState{}, nil
}
func (fakeAgent) FindBlocks(ctx context.Context, pred adapter.BlockPredicate, limit int) ([]adapter.BlockSighting, error) {
	return nil, nil
}
func (fakeAgent) FindNearestBlock(ctx context.Context, name string) (adapter.BlockSighting, bool, error) {
	return adapter.BlockSighting{}, false, nil
}
func (fakeAgent) PathfindTo(ctx context.Context, pos worldstate.Position, rangeUnits int) error {
	return nil
}
func (fakeAgent) LookAt(ctx context.Context, pos worldstate.Position) error { return nil }
func (fakeAgent) SetControlState(ctx context.Context, state adapter.ControlState, active bool) error {
	return nil
}
func (fakeAgent) ClearControls(ctx context.Context) error                { return nil }
func (fakeAgent) Dig(ctx context.Context, pos worldstate.Position) error { return nil }
func (fakeAgent) PlaceBlock(ctx context.Context, pos worldstate.Position, heldItem string) error {
	return nil
}
func (fakeAgent) Equip(ctx context.Context, item string) error                    { return nil }
func (fakeAgent) OpenContainer(ctx context.Context, pos worldstate.Position) error { return nil }
func (fakeAgent) CraftRecipe(ctx context.Context, item string, count int, tableRequired bool) error {
	return nil
}
func (fakeAgent) Chat(ctx context.Context, message string) error { return nil }
func (fakeAgent) Quit(ctx context.Context) error                 { return nil }
func (fakeAgent) Combat() adapter.CombatPlugin                   { return nil }

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, prompt string, timeoutMs int64) (adapter.Completion, error) {
	return adapter.Completion{Text: `{"next_goal":"idle","subgoals":[]}`}, nil
}

func testConfig(botCount int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Fleet.BotCount = botCount
	cfg.Fleet.BotStartStaggerMs = 0
	cfg.Loop.OrchTickMs = 10
	return cfg
}

func TestOrchestrator_ControllerConfigMapping(t *testing.T) {
	cfg := testConfig(1)
	cfg.Skills.SubgoalExecTimeoutMs = 42_000
	cfg.Skills.SubgoalRetryLimit = 7
	cfg.Planner.LLMHistoryLimit = 9
	cfg.Base.X, cfg.Base.Y, cfg.Base.Z = 1, 2, 3

	o := New(cfg, nil, catalog.NewInMemoryCatalog(), fakeLLM{}, func(ctx context.Context, botID string) (adapter.Agent, error) {
		return fakeAgent{}, nil
	})

	cc := o.controllerConfig()
	assert.Equal(t, int64(42_000), cc.ExecTimeoutMs)
	assert.Equal(t, 7, cc.RetryLimit)
	assert.Equal(t, 9, cc.LLMHistoryLimit)
	assert.Equal(t, worldstate.Position{X: 1, Y: 2, Z: 3}, cc.Base)
	assert.True(t, cc.AutoplanOn)
}

func TestOrchestrator_StartRunsControllersUntilContextCancelled(t *testing.T) {
	cfg := testConfig(2)
	dialCalls := 0
	o := New(cfg, nil, catalog.NewInMemoryCatalog(), fakeLLM{}, func(ctx context.Context, botID string) (adapter.Agent, error) {
		dialCalls++
		return fakeAgent{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := o.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dialCalls)

	snap := o.Snapshot()
	assert.Equal(t, 2, snap.BotCount)
	assert.Len(t, snap.Bots, 2)
}

func TestOrchestrator_Stop_ToleratesNilStoreAndNoControllers(t *testing.T) {
	cfg := testConfig(1)
	o := New(cfg, nil, catalog.NewInMemoryCatalog(), fakeLLM{}, func(ctx context.Context, botID string) (adapter.Agent, error) {
		return fakeAgent{}, nil
	})
	assert.NotPanics(t, func() { o.Stop(context.Background()) })
}

func TestOrchestrator_Snapshot_BeforeStartIsEmpty(t *testing.T) {
	cfg := testConfig(3)
	o := New(cfg, nil, catalog.NewInMemoryCatalog(), fakeLLM{}, func(ctx context.Context, botID string) (adapter.Agent, error) {
		return fakeAgent{}, nil
	})
	snap := o.Snapshot()
	assert.Equal(t, 0, snap.BotCount)
	assert.Empty(t, snap.Bots)
}
