// Package fleet implements the Fleet Orchestrator (§4, §5): it owns every
// shared service (Rate Limiter, Lock Manager, Skill/Explorer Limiters,
// Store) and spawns one Agent Controller per bot, each exclusively owning
// its own TaskState, history, and adapter handle.
package fleet

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/admission"
	"github.com/fleetcore/agentfleet/internal/catalog"
	"github.com/fleetcore/agentfleet/internal/config"
	"github.com/fleetcore/agentfleet/internal/controller"
	"github.com/fleetcore/agentfleet/internal/fallback"
	"github.com/fleetcore/agentfleet/internal/guard"
	"github.com/fleetcore/agentfleet/internal/lockmgr"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/planner"
	"github.com/fleetcore/agentfleet/internal/ratelimit"
	"github.com/fleetcore/agentfleet/internal/skillengine"
	"github.com/fleetcore/agentfleet/internal/store"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// DialFunc produces a connected Agent handle for botID, called both at
// startup and on every reconnect attempt.
type DialFunc func(ctx context.Context, botID string) (adapter.Agent, error)

// Orchestrator owns the shared services and the fleet's Agent Controllers.
type Orchestrator struct {
	cfg    *config.Config
	runID  string
	dial   DialFunc
	llm    adapter.LLMClient
	cat    catalog.Catalog
	st     *store.Store

	limiter         *ratelimit.Limiter
	locks           *lockmgr.Manager
	skillLimiter    *admission.SkillLimiter
	explorerLimiter *admission.ExplorerLimiter
	guardG          *guard.Guard
	fbPlanner       *fallback.Planner

	controllers []*controller.Controller
	cancel      context.CancelFunc
}

// New constructs an Orchestrator from a loaded config, a store handle, a
// catalog, an LLM client, and the caller-supplied dial function that knows
// how to produce a concrete Agent for a given bot id.
func New(cfg *config.Config, st *store.Store, cat catalog.Catalog, llm adapter.LLMClient, dial DialFunc) *Orchestrator {
	base := worldstate.Position{X: cfg.Base.X, Y: cfg.Base.Y, Z: cfg.Base.Z}

	locks := lockmgr.New(cfg.Coordination.LockLeaseMs, storeSink{st})
	limiter := ratelimit.New(cfg.Planner.LLMPerBotHourlyCap, cfg.Planner.LLMGlobalHourlyCap)
	g := guard.New(cat)
	fb := fallback.New(g)

	return &Orchestrator{
		cfg:             cfg,
		dial:            dial,
		llm:             llm,
		cat:             cat,
		st:              st,
		limiter:         limiter,
		locks:           locks,
		skillLimiter:    admission.NewSkillLimiter(cfg.Skills.MaxConcurrentSkills),
		explorerLimiter: admission.NewExplorerLimiter(cfg.Coordination.MaxConcurrentExplorers),
		guardG:          g,
		fbPlanner:       fb,
	}
}

// storeSink adapts *store.Store to lockmgr.Sink, tolerating a nil store
// (tests construct an Orchestrator without persistence).
type storeSink struct{ st *store.Store }

func (s storeSink) RecordLockEvent(e lockmgr.Event) {
	if s.st != nil {
		s.st.RecordLockEvent(e)
	}
}

func (o *Orchestrator) controllerConfig() controller.Config {
	c := o.cfg
	return controller.Config{
		TickMs:                c.Loop.OrchTickMs,
		ExecTimeoutMs:         c.Skills.SubgoalExecTimeoutMs,
		IdleStallMs:           c.Skills.SubgoalIdleStallMs,
		RetryLimit:            c.Skills.SubgoalRetryLimit,
		RetryBaseDelayMs:      c.Skills.SubgoalRetryBaseDelayMs,
		RetryMaxDelayMs:       c.Skills.SubgoalRetryMaxDelayMs,
		LoopGuardRepeats:      c.Skills.SubgoalLoopGuardRepeats,
		FailureStreakWindowMs: c.Skills.SubgoalFailureStreakWindowMs,
		PlannerCooldownMs:     c.Planner.PlannerCooldownMs,
		LLMHistoryLimit:       c.Planner.LLMHistoryLimit,
		PrefetchEnabled:       c.Planner.PlanPrefetchEnabled,
		PrefetchMinIntervalMs: c.Planner.PlanPrefetchMinIntervalMs,
		PrefetchMaxAgeMs:      c.Planner.PlanPrefetchMaxAgeMs,
		PrefetchReserveCalls:  c.Planner.PlanPrefetchReserveCalls,
		PerBotHourlyCap:       c.Planner.LLMPerBotHourlyCap,
		ReconnectBaseDelayMs:  c.Fleet.ReconnectBaseDelayMs,
		ReconnectJitterMs:     c.Fleet.ReconnectJitterMs,
		Base:                  worldstate.Position{X: c.Base.X, Y: c.Base.Y, Z: c.Base.Z},
		AutoplanOn:            true,
	}
}

// Start dials bot_count agents (staggered by bot_start_stagger_ms), builds
// one Controller per bot, and runs their tick loops concurrently until ctx
// is cancelled or Stop is called. Start blocks until every controller's
// Start returns.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.runID = fmt.Sprintf("run-%d", time.Now().UnixNano())
	if o.st != nil {
		if err := o.st.RecordRunStart(o.runID, nowMs(), o.cfg.Fleet.BotCount); err != nil {
			logging.FleetError("run start persist failed: %v", err)
		}
	}

	logging.Fleet("fleet starting: %d bots", o.cfg.Fleet.BotCount)

	plannerCfg := planner.Config{
		MaxRetries:                     o.cfg.Planner.PlannerMaxRetries,
		TimeoutMs:                      o.cfg.Planner.PlannerTimeoutMs,
		FeasibilityRepromptEnabled:     o.cfg.Planner.FeasibilityRepromptEnabled,
		FeasibilityRepromptMaxAttempts: o.cfg.Planner.FeasibilityRepromptMaxAttempts,
	}
	base := worldstate.Position{X: o.cfg.Base.X, Y: o.cfg.Base.Y, Z: o.cfg.Base.Z}

	g, gctx := errgroup.WithContext(runCtx)
	ccfg := o.controllerConfig()

	for i := 0; i < o.cfg.Fleet.BotCount; i++ {
		botID := fmt.Sprintf("bot-%d", i)
		stagger := time.Duration(i) * time.Duration(o.cfg.Fleet.BotStartStaggerMs) * time.Millisecond

		ag, err := o.dial(runCtx, botID)
		if err != nil {
			logging.FleetError("bot=%s initial dial failed: %v", botID, err)
			ag = nil
		}
		if o.st != nil {
			_ = o.st.RecordBot(botID, o.runID, botID, nowMs())
		}

		plannerSvc := planner.New(o.llm, o.limiter, o.guardG, o.fbPlanner, plannerCfg, base)
		engine := skillengine.New(o.locks, o.cfg.Coordination.LockHeartbeatMs, base)

		reconnectFn := func(id string) controller.ReconnectFunc {
			return func(ctx context.Context) (adapter.Agent, error) { return o.dial(ctx, id) }
		}(botID)

		ctrl := controller.New(botID, ag, ccfg, o.limiter, o.locks, o.skillLimiter, o.explorerLimiter, engine, plannerSvc, o.fbPlanner, o.guardG, o.cat, o.st, reconnectFn)
		o.controllers = append(o.controllers, ctrl)

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-time.After(stagger):
			}
			ctrl.Start(gctx)
			return nil
		})
	}

	err := g.Wait()

	if o.st != nil {
		_ = o.st.RecordRunEnd(o.runID, nowMs())
	}
	return err
}

// Stop cancels the fleet timers, stops each controller in turn, and closes
// the store — the shutdown sequence from §5.
func (o *Orchestrator) Stop(ctx context.Context) {
	logging.Fleet("fleet stopping")
	if o.cancel != nil {
		o.cancel()
	}
	for _, ctrl := range o.controllers {
		ctrl.Stop(ctx)
	}
	if o.st != nil {
		if err := o.st.Close(); err != nil {
			logging.FleetError("store close failed: %v", err)
		}
	}
}

// BotStatus is one controller's view for the fleet status gauge.
type BotStatus struct {
	BotID          string
	State          worldstate.AgentState
	CurrentGoal    string
	CurrentSubgoal string
	QueueDepth     int
	LastError      string
}

// FleetStatus is the Fleet Orchestrator's aggregate status gauge for
// in-process callers. cmd/fleetctl's `status`/`status --watch` commands do
// not read it; they read the bot_state rows persisted in the store.
type FleetStatus struct {
	RunID        string
	BotCount     int
	ActiveSkills int
	ActiveExplorers int
	Bots         []BotStatus
}

// Snapshot returns the fleet's current status, grounded on the teacher's
// limits-enforcer status-gauge pattern.
func (o *Orchestrator) Snapshot() FleetStatus {
	fs := FleetStatus{
		RunID:           o.runID,
		BotCount:        len(o.controllers),
		ActiveSkills:    o.skillLimiter.ActiveCount(),
		ActiveExplorers: o.explorerLimiter.ActiveCount(),
	}
	for _, ctrl := range o.controllers {
		ts := ctrl.Snapshot()
		fs.Bots = append(fs.Bots, BotStatus{
			BotID:          ctrl.AgentID(),
			State:          ts.State,
			CurrentGoal:    ts.CurrentGoal,
			CurrentSubgoal: ts.CurrentSubgoal,
			QueueDepth:     ts.QueueDepth,
			LastError:      ts.LastError,
		})
	}
	return fs
}

func nowMs() int64 { return time.Now().UnixMilli() }
