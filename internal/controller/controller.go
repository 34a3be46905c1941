// Package controller implements the Agent Controller (§4.9): the
// per-agent tick-loop state machine owning exactly one TaskState, its
// history, and its adapter handle. The Fleet Orchestrator owns everything
// shared across agents; the controller only ever reaches into collaborator
// services through the narrow handles it was constructed with.
package controller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/admission"
	"github.com/fleetcore/agentfleet/internal/catalog"
	"github.com/fleetcore/agentfleet/internal/fallback"
	"github.com/fleetcore/agentfleet/internal/guard"
	"github.com/fleetcore/agentfleet/internal/lockmgr"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/planner"
	"github.com/fleetcore/agentfleet/internal/ratelimit"
	"github.com/fleetcore/agentfleet/internal/reflex"
	"github.com/fleetcore/agentfleet/internal/skillengine"
	"github.com/fleetcore/agentfleet/internal/snapshot"
	"github.com/fleetcore/agentfleet/internal/store"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// Config bundles the timing/retry/prefetch knobs the controller needs from
// config.Config, by value so the controller stays constructible without a
// YAML file on disk (mirrors planner.Config's shape).
type Config struct {
	TickMs                int64
	ExecTimeoutMs         int64
	IdleStallMs           int64
	RetryLimit            int
	RetryBaseDelayMs      int64
	RetryMaxDelayMs       int64
	LoopGuardRepeats      int
	FailureStreakWindowMs int64

	PlannerCooldownMs int64
	LLMHistoryLimit   int

	PrefetchEnabled       bool
	PrefetchMinIntervalMs int64
	PrefetchMaxAgeMs      int64
	PrefetchReserveCalls  int
	PerBotHourlyCap       int

	ReconnectBaseDelayMs int64
	ReconnectJitterMs    int64

	Base       worldstate.Position
	AutoplanOn bool // "always-active local plan" gate; no named config key in §6. New does not default it (zero value false); the Fleet Orchestrator's controllerConfig always sets it true
}

// ReconnectFunc builds a fresh Agent handle after a forced disconnect. The
// Agent Adapter's own connection machinery is an external collaborator
// (spec.md §1); the controller only calls this hook and waits.
type ReconnectFunc func(ctx context.Context) (adapter.Agent, error)

// speculativePlan is the prefetch cache from §4.9's "Speculative planning".
type speculativePlan struct {
	preparedAtMs  int64
	forSubgoalID  string
	nextGoal      string
	subgoals      []subgoal.Subgoal
	plannerStatus planner.Status
}

type streakEntry struct {
	windowStartMs int64
	count         int
}

// Controller runs one agent's tick loop.
type Controller struct {
	agentID string
	cfg     Config

	ag adapter.Agent

	limiter         *ratelimit.Limiter
	locks           *lockmgr.Manager
	skillLimiter    *admission.SkillLimiter
	explorerLimiter *admission.ExplorerLimiter
	engine          *skillengine.Engine
	plannerSvc   *planner.Service
	fbPlanner    *fallback.Planner
	guardG       *guard.Guard
	cat          catalog.Catalog
	snapBuilder  *snapshot.Builder
	st           *store.Store
	reconnect    ReconnectFunc

	availableSubgoals []subgoal.Name

	tickMu sync.Mutex // reentrancy guard (TryLock)

	mu                sync.Mutex
	task              *worldstate.TaskState
	state             worldstate.AgentState
	currentStartedAt  int64
	lastProbeAt       int64
	lastProbePosition worldstate.Position
	lastProbeLoad     int
	lastProgressAt    int64
	lastStuckAt       int64
	inactiveSince     int64
	plannerInFlight   bool
	plannerCooldown   int64
	reconnectStreak   int
	failureStreaks    map[string]*streakEntry
	speculative       *speculativePlan
	lastPrefetchAt    int64
	lastSnapshot      worldstate.Snapshot

	reflexMon *reflex.Monitor

	randMu sync.Mutex
	rng    *rand.Rand

	cancel context.CancelFunc
}

// New constructs a Controller for one agent. ag may be nil initially if the
// adapter is not yet connected; Start dials through reconnect in that case.
func New(
	agentID string,
	ag adapter.Agent,
	cfg Config,
	limiter *ratelimit.Limiter,
	locks *lockmgr.Manager,
	skillLimiter *admission.SkillLimiter,
	explorerLimiter *admission.ExplorerLimiter,
	engine *skillengine.Engine,
	plannerSvc *planner.Service,
	fbPlanner *fallback.Planner,
	guardG *guard.Guard,
	cat catalog.Catalog,
	st *store.Store,
	reconnectFn ReconnectFunc,
) *Controller {
	names := make([]subgoal.Name, 0, len(subgoal.Names))
	for n := range subgoal.Names {
		names = append(names, n)
	}

	return &Controller{
		agentID:           agentID,
		ag:                ag,
		cfg:               cfg,
		limiter:           limiter,
		locks:             locks,
		skillLimiter:      skillLimiter,
		explorerLimiter:   explorerLimiter,
		engine:            engine,
		plannerSvc:        plannerSvc,
		fbPlanner:         fbPlanner,
		guardG:            guardG,
		cat:               cat,
		snapBuilder:       snapshot.NewBuilder(agentID, defaultResourceKinds, defaultPOIKinds),
		st:                st,
		reconnect:         reconnectFn,
		availableSubgoals: names,
		task:              worldstate.NewTaskState(cfg.LLMHistoryLimit * 2),
		state:             worldstate.StateDisconnected,
		failureStreaks:    make(map[string]*streakEntry),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var defaultResourceKinds = []string{
	"oak_log", "iron_ore", "coal_ore", "stone", "cobblestone", "diamond_ore",
}

var defaultPOIKinds = []string{"crafting_table", "furnace", "chest"}

// AgentID returns the owned agent identifier.
func (c *Controller) AgentID() string { return c.agentID }

// State returns the controller's current visible state.
func (c *Controller) State() worldstate.AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TaskSnapshot returns a read-only copy of the fields the status dashboard
// needs, without exposing the mutable TaskState directly.
type TaskSnapshot struct {
	State          worldstate.AgentState
	CurrentGoal    string
	CurrentSubgoal string
	QueueDepth     int
	LastError      string
}

// Snapshot returns the controller's current TaskSnapshot for dashboards.
func (c *Controller) Snapshot() TaskSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := ""
	if c.task.CurrentSubgoal != nil {
		cur = string(c.task.CurrentSubgoal.Name)
	}
	return TaskSnapshot{
		State:          c.state,
		CurrentGoal:    c.task.CurrentGoal,
		CurrentSubgoal: cur,
		QueueDepth:     len(c.task.Queue),
		LastError:      c.task.LastError,
	}
}

// busy reports whether the controller's state machine considers itself
// EXECUTING right now; the Reflex Monitor's stall probe uses this.
func (c *Controller) busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task.Busy
}

// Start attaches the reflex monitor (if the adapter is connected) and runs
// the tick loop until ctx is cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.mu.Lock()
	connected := c.ag != nil
	if connected {
		c.state = worldstate.StateConnectedIdle
		c.inactiveSince = nowMs()
	}
	c.mu.Unlock()

	logging.Controller("agent=%s controller started", c.agentID)
	c.attachReflex(runCtx)
	if !connected {
		go c.runReconnect(runCtx, 0)
	}

	interval := time.Duration(c.cfg.TickMs) * time.Millisecond
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			c.tick(runCtx)
		}
	}
}

// Stop cancels the tick loop, detaches the reflex monitor, releases any
// held skill limiter slot, clears controls, and quits the adapter — the
// orchestrator shutdown sequence from §5.
func (c *Controller) Stop(ctx context.Context) {
	logging.Controller("agent=%s controller stopping", c.agentID)
	if c.cancel != nil {
		c.cancel()
	}
	if c.reflexMon != nil {
		c.reflexMon.Stop()
	}

	c.mu.Lock()
	ag := c.ag
	busy := c.task.Busy
	c.mu.Unlock()

	if busy {
		c.skillLimiter.Leave(c.agentID)
	}
	if ag != nil {
		_ = ag.ClearControls(ctx)
		_ = ag.Quit(ctx)
	}
}

func (c *Controller) attachReflex(ctx context.Context) {
	c.mu.Lock()
	ag := c.ag
	c.mu.Unlock()
	if ag == nil {
		return
	}
	cfg := reflex.DefaultConfig()
	c.reflexMon = reflex.New(c.agentID, ag, reflexSink{c}, cfg, c.cfg.Base, c.busy)
	c.reflexMon.Start(ctx)
}

// reflexSink adapts Controller's TaskState trigger set to reflex.Sink.
type reflexSink struct{ c *Controller }

func (s reflexSink) AddTrigger(t worldstate.Trigger) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.task.PendingTriggers.Add(t)
	if t == worldstate.TriggerDeath {
		s.c.task.ClearQueue()
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }
