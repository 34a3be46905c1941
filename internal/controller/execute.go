package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/planner"
	"github.com/fleetcore/agentfleet/internal/store"
	"github.com/fleetcore/agentfleet/internal/subgoal"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// executeNext implements §4.9's "Executing next subgoal": acquire a Skill
// Limiter slot, pop the ready entry, clear residuals, run the Skill
// Engine, record the outcome, and release the slot.
func (c *Controller) executeNext(ctx context.Context, idx int) {
	if !c.skillLimiter.TryEnter(c.agentID) {
		return
	}

	c.mu.Lock()
	rt := c.task.PopAt(idx)
	c.mu.Unlock()

	explorerSlot := rt.Name == subgoal.Explore
	if explorerSlot && c.explorerLimiter != nil {
		if !c.explorerLimiter.TryEnter(c.agentID) {
			c.mu.Lock()
			c.task.PushHead(rt)
			c.mu.Unlock()
			c.skillLimiter.Leave(c.agentID)
			return
		}
	}

	_ = c.ag.ClearControls(ctx)

	preState, _ := c.ag.State(ctx)
	startedAt := nowMs()

	c.mu.Lock()
	c.task.Busy = true
	c.task.CurrentSubgoal = &rt
	c.state = worldstate.StateExecuting
	c.mu.Unlock()
	c.currentStartedAt = startedAt
	c.lastProbeAt = startedAt
	c.lastProbePosition = preState.Position
	c.lastProbeLoad = inventoryLoad(preState.Inventory)
	c.lastProgressAt = startedAt

	result := c.engine.Execute(ctx, c.agentID, c.ag, rt.Subgoal)
	duration := nowMs() - startedAt

	postState, _ := c.ag.State(ctx)

	entry := worldstate.HistoryEntry{
		TimestampMs:    nowMs(),
		SubgoalName:    rt.Name,
		Params:         rt.Params,
		Outcome:        result.Outcome,
		ErrorCode:      result.ErrorCode,
		ErrorDetails:   result.ErrorDetails,
		InventoryDelta: inventoryDelta(preState.Inventory, postState.Inventory),
		HealthDelta:    postState.Health - preState.Health,
		DurationMs:     duration,
	}

	c.mu.Lock()
	c.task.History.Append(entry)
	c.mu.Unlock()

	if c.st != nil {
		if err := c.st.RecordAttempt(store.Attempt{ID: rt.ID, AgentID: c.agentID, Entry: entry, Result: result}, nowMs()); err != nil {
			logging.ControllerError("agent=%s attempt persist failed: %v", c.agentID, err)
		}
	}

	if result.IsSuccess() {
		logging.Controller("agent=%s subgoal=%s succeeded in %dms", c.agentID, rt.Name, duration)
		c.onSuccess(rt, result)
	} else {
		logging.ControllerWarn("agent=%s subgoal=%s failed code=%s retryable=%v", c.agentID, rt.Name, result.ErrorCode, result.Retryable)
		c.onFailure(rt, result, nowMs())
	}

	_ = c.ag.ClearControls(ctx)

	c.mu.Lock()
	c.task.Busy = false
	c.task.CurrentSubgoal = nil
	c.state = worldstate.StateConnectedIdle
	c.mu.Unlock()

	c.skillLimiter.Leave(c.agentID)
	if explorerSlot && c.explorerLimiter != nil {
		c.explorerLimiter.Leave(c.agentID)
	}
}

// onSuccess implements the Success branch: reset the failure streak for
// this subgoal name, bump its progress counter (by the recipe's declared
// result count for craft, per Open Question #2, else by one), and either
// consume a fresh speculative plan or raise SUBGOAL_COMPLETED.
func (c *Controller) onSuccess(rt subgoal.RuntimeSubgoal, result subgoal.SkillResult) {
	inc := 1
	if rt.Name == subgoal.Craft && c.cat != nil {
		if item, ok := rt.Params["item"].(string); ok {
			if recipe, ok := c.cat.Recipe(item); ok && recipe.ResultCount > 0 {
				inc = recipe.ResultCount
			}
		}
	}

	c.mu.Lock()
	c.resetStreaksLocked(rt.Name)
	c.task.ProgressCounters[string(rt.Name)] += inc
	queueEmpty := len(c.task.Queue) == 0
	c.mu.Unlock()

	if !queueEmpty {
		return
	}
	if c.tryConsumeSpeculative(rt.ID) {
		return
	}
	c.mu.Lock()
	c.task.PendingTriggers.Add(worldstate.TriggerSubgoalCompleted)
	c.mu.Unlock()
}

// onFailure implements the Failure branch: retryability, failure-streak
// loop guard, retry-limit lookup, and either requeue-with-backoff or
// drop-and-trigger.
func (c *Controller) onFailure(rt subgoal.RuntimeSubgoal, result subgoal.SkillResult, now int64) {
	c.invalidateSpeculative()

	streakKey := fmt.Sprintf("%s:%s", rt.Name, result.ErrorCode)

	c.mu.Lock()
	streak := c.bumpStreakLocked(streakKey, now)
	retryable := result.Retryable && subgoal.CanRetryFailure(result.ErrorCode)
	if streak >= c.cfg.LoopGuardRepeats {
		retryable = false
	}
	limit := subgoal.RetryLimitFor(result.ErrorCode, c.cfg.RetryLimit)
	c.mu.Unlock()

	if retryable && rt.RetryCount < limit {
		delay := c.retryDelay(rt.RetryCount)
		next := rt.Retry(now, now+delay)
		c.mu.Lock()
		c.task.PushHead(next)
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.task.ClearQueue()
	c.plannerCooldown = now
	c.task.PendingTriggers.Add(worldstate.TriggerSubgoalFailed)
	c.task.LastError = string(result.ErrorCode)
	c.mu.Unlock()
}

// bumpStreakLocked increments the windowed failure-streak counter for key,
// resetting the window if it has expired. Caller must hold c.mu.
func (c *Controller) bumpStreakLocked(key string, now int64) int {
	entry, ok := c.failureStreaks[key]
	if !ok || now-entry.windowStartMs > c.cfg.FailureStreakWindowMs {
		entry = &streakEntry{windowStartMs: now}
		c.failureStreaks[key] = entry
	}
	entry.count++
	return entry.count
}

// resetStreaksLocked clears every streak entry for subgoal name n (any
// error code), called on that subgoal's success. Caller must hold c.mu.
func (c *Controller) resetStreaksLocked(n subgoal.Name) {
	prefix := string(n) + ":"
	for k := range c.failureStreaks {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.failureStreaks, k)
		}
	}
}

// retryDelay computes jitter(base_delay × (retry_count+1)) clamped to
// max_delay, mirroring the planner's jitterMs pattern.
func (c *Controller) retryDelay(retryCount int) int64 {
	base := float64(c.cfg.RetryBaseDelayMs) * float64(retryCount+1)
	c.randMu.Lock()
	factor := c.rng.Float64()
	c.randMu.Unlock()
	jittered := int64(base * (0.5 + factor))
	if jittered > c.cfg.RetryMaxDelayMs {
		return c.cfg.RetryMaxDelayMs
	}
	return jittered
}

func (c *Controller) jitterUniform(maxMs int64) int64 {
	if maxMs <= 0 {
		return 0
	}
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return int64(c.rng.Float64() * float64(maxMs))
}

func inventoryDelta(before, after map[string]int) map[string]int {
	delta := make(map[string]int)
	for item, n := range after {
		if d := n - before[item]; d != 0 {
			delta[item] = d
		}
	}
	for item, n := range before {
		if _, ok := after[item]; !ok && n != 0 {
			delta[item] = -n
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// maybeRequestPlan implements §4.9 step 6: when triggers are pending, the
// cooldown has elapsed, and no planner call is in flight, refresh the
// snapshot and call the Planner Service.
func (c *Controller) maybeRequestPlan(ctx context.Context, now int64) bool {
	c.mu.Lock()
	pending := !c.task.PendingTriggers.Empty()
	cooldownOk := now >= c.plannerCooldown
	inFlight := c.plannerInFlight
	c.mu.Unlock()
	if !pending || !cooldownOk || inFlight {
		return false
	}

	snap, err := c.buildSnapshot(ctx, now)
	if err != nil {
		return false
	}

	c.mu.Lock()
	c.plannerInFlight = true
	c.task.PendingTriggers.Clear()
	history := c.historyForPlannerLocked()
	c.state = worldstate.StatePlanning
	c.mu.Unlock()

	req := planner.Request{
		BotID:             c.agentID,
		Snapshot:          snap,
		History:           history,
		AvailableSubgoals: c.availableSubgoals,
	}

	result, err := c.plannerSvc.Plan(ctx, req)

	c.mu.Lock()
	c.plannerInFlight = false
	c.mu.Unlock()

	if err != nil {
		logging.ControllerError("agent=%s planner schema error: %v", c.agentID, err)
		c.mu.Lock()
		c.plannerCooldown = now + c.cfg.PlannerCooldownMs
		c.mu.Unlock()
		return true
	}

	c.enqueuePlan(now, result.Response.NextGoal, result.Response.Subgoals)
	c.mu.Lock()
	c.plannerCooldown = now + c.cfg.PlannerCooldownMs
	c.mu.Unlock()
	return true
}

// historyForPlannerLocked returns the bounded recent history the prompt
// builder sees, capped at llm_history_limit entries. Caller must hold c.mu.
func (c *Controller) historyForPlannerLocked() []worldstate.HistoryEntry {
	entries := c.task.History.Entries()
	if len(entries) > c.cfg.LLMHistoryLimit && c.cfg.LLMHistoryLimit > 0 {
		entries = entries[len(entries)-c.cfg.LLMHistoryLimit:]
	}
	return entries
}

// attemptPrefetch implements §4.9's speculative planning: while EXECUTING
// subgoal S with an empty queue and no pending triggers, ≥1.2s into S, and
// within rate-limit headroom, invoke the planner in the background and
// cache its result keyed to S's id.
func (c *Controller) attemptPrefetch(ctx context.Context, now int64) {
	if !c.cfg.PrefetchEnabled {
		return
	}

	c.mu.Lock()
	queueEmpty := len(c.task.Queue) == 0
	noTriggers := c.task.PendingTriggers.Empty()
	cur := c.task.CurrentSubgoal
	startedAt := c.currentStartedAt
	c.mu.Unlock()

	if !queueEmpty || !noTriggers || cur == nil {
		return
	}
	if now-startedAt < 1200 {
		return
	}
	if now-c.lastPrefetchAt < c.cfg.PrefetchMinIntervalMs {
		return
	}
	if c.cfg.PerBotHourlyCap > 0 && c.limiter.CallsInLastHour(c.agentID, now) >= c.cfg.PerBotHourlyCap-c.cfg.PrefetchReserveCalls {
		return
	}

	snap, err := c.buildSnapshot(ctx, now)
	if err != nil {
		return
	}

	c.mu.Lock()
	history := c.historyForPlannerLocked()
	c.mu.Unlock()

	req := planner.Request{
		BotID:             c.agentID,
		Snapshot:          snap,
		History:           history,
		AvailableSubgoals: c.availableSubgoals,
	}
	subgoalID := cur.ID
	c.lastPrefetchAt = now

	go func() {
		prefetchCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.PlannerCooldownMs+20_000)*time.Millisecond)
		defer cancel()
		result, err := c.plannerSvc.Plan(prefetchCtx, req)
		if err != nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.task.CurrentSubgoal == nil || c.task.CurrentSubgoal.ID != subgoalID {
			return
		}
		c.speculative = &speculativePlan{
			preparedAtMs:  nowMs(),
			forSubgoalID:  subgoalID,
			nextGoal:      result.Response.NextGoal,
			subgoals:      result.Response.Subgoals,
			plannerStatus: result.Status,
		}
	}()
}

// tryConsumeSpeculative adopts the cached plan if it was prepared for
// subgoalID and is still within plan_prefetch_max_age_ms.
func (c *Controller) tryConsumeSpeculative(subgoalID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sp := c.speculative
	if sp == nil || sp.forSubgoalID != subgoalID {
		return false
	}
	c.speculative = nil
	if nowMs()-sp.preparedAtMs > c.cfg.PrefetchMaxAgeMs {
		return false
	}

	c.task.CurrentGoal = sp.nextGoal
	now := nowMs()
	for _, sg := range sp.subgoals {
		c.task.PushTail(subgoal.NewRuntime(sg, now))
	}
	c.task.PendingTriggers.Clear()
	return true
}

func (c *Controller) invalidateSpeculative() {
	c.mu.Lock()
	c.speculative = nil
	c.mu.Unlock()
}
