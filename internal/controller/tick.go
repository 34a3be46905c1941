package controller

import (
	"context"
	"math"

	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// tick runs one reentrancy-guarded iteration of the controller's state
// machine, implementing §4.9's ordered check list.
func (c *Controller) tick(ctx context.Context) {
	if !c.tickMu.TryLock() {
		return
	}
	defer c.tickMu.Unlock()

	c.mu.Lock()
	disconnected := c.state == worldstate.StateDisconnected
	c.mu.Unlock()
	if disconnected {
		return
	}

	now := nowMs()

	if c.checkExecTimeout(ctx, now) {
		return
	}
	if c.checkIdleStall(ctx, now) {
		return
	}
	if c.executingBranch(ctx, now) {
		return
	}
	c.handleNonBusyInactivity(ctx, now)

	c.mu.Lock()
	readyIdx := c.task.NextReady(now)
	c.mu.Unlock()
	if readyIdx >= 0 {
		c.executeNext(ctx, readyIdx)
		return
	}

	if c.maybeRequestPlan(ctx, now) {
		return
	}

	c.maybeEnqueueAlwaysActive(ctx, now)
}

// checkExecTimeout implements §4.9 step 1.
func (c *Controller) checkExecTimeout(ctx context.Context, now int64) bool {
	c.mu.Lock()
	busy := c.task.Busy
	startedAt := c.currentStartedAt
	c.mu.Unlock()
	if !busy {
		return false
	}
	if now-startedAt < c.cfg.ExecTimeoutMs {
		return false
	}
	logging.ControllerWarn("agent=%s subgoal exec timeout after %dms", c.agentID, now-startedAt)
	c.forceDisconnect(ctx, "subgoal_timeout")
	return true
}

// checkIdleStall implements §4.9 step 2: a ~700ms progress probe while
// EXECUTING, using position delta and inventory-total change as the two
// progress signals.
func (c *Controller) checkIdleStall(ctx context.Context, now int64) bool {
	c.mu.Lock()
	busy := c.task.Busy
	c.mu.Unlock()
	if !busy {
		return false
	}
	if now-c.lastProbeAt < 700 {
		return false
	}

	state, err := c.ag.State(ctx)
	if err != nil {
		return false
	}
	load := inventoryLoad(state.Inventory)
	moved := distance(c.lastProbePosition, state.Position) >= 0.15
	changed := load != c.lastProbeLoad

	c.lastProbeAt = now
	c.lastProbePosition = state.Position
	c.lastProbeLoad = load

	if moved || changed {
		c.lastProgressAt = now
		return false
	}
	if c.lastProgressAt == 0 {
		c.lastProgressAt = now
		return false
	}
	if now-c.lastProgressAt < c.cfg.IdleStallMs {
		return false
	}

	logging.ControllerWarn("agent=%s idle stall: no progress for %dms", c.agentID, now-c.lastProgressAt)
	c.forceDisconnect(ctx, "subgoal_idle_stall")
	return true
}

// executingBranch implements §4.9 step 3: STUCK recovery and the
// speculative-prefetch attempt.
func (c *Controller) executingBranch(ctx context.Context, now int64) bool {
	c.mu.Lock()
	busy := c.task.Busy
	hasStuck := c.task.PendingTriggers.Has(worldstate.TriggerStuck)
	startedAt := c.currentStartedAt
	c.mu.Unlock()
	if !busy {
		return false
	}

	if hasStuck && now-startedAt >= 5000 && now-c.lastStuckAt >= 2000 {
		c.mu.Lock()
		c.task.PendingTriggers.Remove(worldstate.TriggerStuck)
		c.mu.Unlock()
		c.lastStuckAt = now
		logging.ControllerWarn("agent=%s stuck recovery", c.agentID)
		c.forceDisconnect(ctx, "stuck_recovery")
		return true
	}

	c.attemptPrefetch(ctx, now)
	return false
}

// handleNonBusyInactivity implements §4.9 step 4.
func (c *Controller) handleNonBusyInactivity(ctx context.Context, now int64) {
	c.mu.Lock()
	busy := c.task.Busy
	queueEmpty := len(c.task.Queue) == 0
	inactiveSince := c.inactiveSince
	c.mu.Unlock()
	if busy {
		return
	}

	if !queueEmpty {
		c.mu.Lock()
		if c.task.NextReady(now) == -1 {
			c.task.HoistEarliest(now)
		}
		c.mu.Unlock()
		return
	}

	if inactiveSince == 0 {
		c.mu.Lock()
		c.inactiveSince = now
		c.mu.Unlock()
		return
	}
	if now-inactiveSince < c.cfg.IdleStallMs {
		return
	}

	snap, err := c.buildSnapshot(ctx, now)
	if err != nil {
		return
	}
	result := c.guardG.AutonomousProgressionPlan(snap, 0)
	c.enqueuePlan(now, result.Reason, result.Subgoals)
}

// maybeEnqueueAlwaysActive implements §4.9 step 7: a last-resort autonomous
// plan when nothing else gave the queue work this tick. There is no named
// config option for this gate in spec.md §6; Config.AutoplanOn is false
// unless the caller sets it, and the Fleet Orchestrator always sets it true.
func (c *Controller) maybeEnqueueAlwaysActive(ctx context.Context, now int64) {
	if !c.cfg.AutoplanOn {
		return
	}
	c.mu.Lock()
	empty := len(c.task.Queue) == 0
	c.mu.Unlock()
	if !empty {
		return
	}

	snap, err := c.buildSnapshot(ctx, now)
	if err != nil {
		return
	}
	result := c.guardG.AutonomousProgressionPlan(snap, 0)
	c.enqueuePlan(now, result.Reason, result.Subgoals)
}

// enqueuePlan pushes a freshly-synthesized plan's subgoals onto the queue
// as RuntimeSubgoals, and records the goal reason for dashboards.
func (c *Controller) enqueuePlan(now int64, goal string, subgoals []subgoal.Subgoal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.task.CurrentGoal = goal
	for _, sg := range subgoals {
		c.task.PushTail(subgoal.NewRuntime(sg, now))
	}
	c.inactiveSince = 0
}

// buildSnapshot derives a fresh worldstate.Snapshot, folding in the
// controller's task-context view, used by both the autonomous-progression
// fallback and the planner request path. nowMs is the wall-clock call time
// (used for persistence); the day-phase bucket is derived from the
// adapter's own reported time-of-day, not from nowMs.
func (c *Controller) buildSnapshot(ctx context.Context, nowMs int64) (worldstate.Snapshot, error) {
	c.mu.Lock()
	taskCtx := worldstate.TaskContext{
		CurrentGoal:      c.task.CurrentGoal,
		ProgressCounters: c.task.ProgressCounters,
		LastError:        c.task.LastError,
	}
	if c.task.CurrentSubgoal != nil {
		taskCtx.CurrentSubgoal = string(c.task.CurrentSubgoal.Name)
	}
	c.mu.Unlock()

	state, err := c.ag.State(ctx)
	if err != nil {
		return worldstate.Snapshot{}, err
	}

	snap, err := c.snapBuilder.Build(ctx, c.ag, taskCtx, state.TimeOfDay, phaseFor(state.TimeOfDay))
	if err != nil {
		return worldstate.Snapshot{}, err
	}
	c.mu.Lock()
	c.lastSnapshot = snap
	c.mu.Unlock()

	if c.st != nil {
		if err := c.st.RecordSnapshot(snap, nowMs); err != nil {
			logging.ControllerError("agent=%s snapshot persist failed: %v", c.agentID, err)
		}
	}
	return snap, nil
}

// phaseFor derives a coarse day-phase bucket from a raw time-of-day tick:
// dawn below 1000, day below 13000, dusk below 18000, night from 18000 on.
// These buckets are independent of the Reflex Monitor's NIGHTFALL window.
func phaseFor(timeOfDay int64) worldstate.TimePhase {
	switch {
	case timeOfDay < 1000:
		return worldstate.Dawn
	case timeOfDay < 13000:
		return worldstate.Day
	case timeOfDay < 18000:
		return worldstate.Dusk
	default:
		return worldstate.Night
	}
}

func inventoryLoad(items map[string]int) int {
	total := 0
	for _, n := range items {
		total += n
	}
	return total
}

func distance(a, b worldstate.Position) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
