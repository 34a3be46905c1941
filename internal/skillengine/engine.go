// Package skillengine implements the Skill Engine (§4.8): dispatches a
// named subgoal to a deterministic handler, acquiring a resource lock first
// when the subgoal requires one, heartbeating it for the handler's
// duration, and always releasing it on exit.
package skillengine

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetcore/agentfleet/internal/adapter"
	"github.com/fleetcore/agentfleet/internal/lockmgr"
	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// Handler executes one subgoal against the adapter and returns its
// outcome. Handlers never panic with an unstructured error; any genuine
// bug surfaces through Engine's recover wrapping, not by convention.
type Handler func(ctx context.Context, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult

// Engine dispatches subgoals by name to registered handlers, applying the
// lock-key table from §4.8. It is stateless dispatch logic; the Lock
// Manager it wraps is the shared, fleet-wide mutable resource.
type Engine struct {
	handlers    map[subgoal.Name]Handler
	locks       *lockmgr.Manager
	heartbeatMs int64
	basePos     worldstate.Position
}

// New constructs an Engine with the default handler set wired in, per
// §4.8's dispatch table.
func New(locks *lockmgr.Manager, heartbeatMs int64, basePos worldstate.Position) *Engine {
	e := &Engine{
		handlers:    make(map[subgoal.Name]Handler),
		locks:       locks,
		heartbeatMs: heartbeatMs,
		basePos:     basePos,
	}
	e.registerDefaultHandlers()
	return e
}

// Register overrides or adds a handler for name, used by tests and by
// deployments that need a custom handler for a domain-specific subgoal.
func (e *Engine) Register(name subgoal.Name, h Handler) {
	e.handlers[name] = h
}

// lockKeyFor computes the optional lock key for sg, per §4.8's table:
// collect -> resource:<target>; build_blueprint with an int anchor ->
// build:x,y,z; deposit/withdraw -> storage:base; else none.
func lockKeyFor(sg subgoal.Subgoal) (string, bool) {
	switch sg.Name {
	case subgoal.Collect:
		target, _ := sg.Params["block"].(string)
		if target == "" {
			return "", false
		}
		return fmt.Sprintf("resource:%s", target), true
	case subgoal.BuildBlueprint:
		x, xok := toInt(sg.Params["x"])
		y, yok := toInt(sg.Params["y"])
		z, zok := toInt(sg.Params["z"])
		if !xok || !yok || !zok {
			return "", false
		}
		return fmt.Sprintf("build:%d,%d,%d", x, y, z), true
	case subgoal.Deposit, subgoal.Withdraw:
		return "storage:base", true
	default:
		return "", false
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Execute dispatches sg to its registered handler, acquiring and
// heartbeating a resource lock for the owning agent if one is required.
func (e *Engine) Execute(ctx context.Context, ownerAgentID string, ag adapter.Agent, sg subgoal.Subgoal) subgoal.SkillResult {
	timer := logging.StartTimer(logging.CategorySkillEngine, fmt.Sprintf("execute:%s", sg.Name))
	defer timer.Stop()

	handler, ok := e.handlers[sg.Name]
	if !ok {
		return subgoal.Failure(subgoal.DependsOnItem, fmt.Sprintf("no handler registered for subgoal %q", sg.Name), false)
	}

	key, needsLock := lockKeyFor(sg)
	if needsLock {
		if !e.locks.Acquire(key, ownerAgentID, nowMs()) {
			logging.SkillEngineDebug("lock refused key=%s owner=%s", key, ownerAgentID)
			return subgoal.Failure(subgoal.DependsOnItem, fmt.Sprintf("resource locked:%s", key), true)
		}
		stop := e.startHeartbeat(key, ownerAgentID)
		defer func() {
			stop()
			e.locks.Release(key, ownerAgentID, nowMs())
		}()
	}

	return e.runHandler(ctx, handler, ag, sg)
}

// runHandler invokes handler, recovering a panic into an unretryable
// DEPENDS_ON_ITEM failure per §4.8's "any exception ... is wrapped" rule.
func (e *Engine) runHandler(ctx context.Context, handler Handler, ag adapter.Agent, sg subgoal.Subgoal) (result subgoal.SkillResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.SkillEngineError("handler panic for subgoal %s: %v", sg.Name, r)
			result = subgoal.Failure(subgoal.DependsOnItem, fmt.Sprintf("handler panic: %v", r), false)
		}
	}()
	return handler(ctx, ag, sg)
}

func (e *Engine) startHeartbeat(key, owner string) func() {
	interval := time.Duration(e.heartbeatMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				e.locks.Heartbeat(key, owner, nowMs())
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
