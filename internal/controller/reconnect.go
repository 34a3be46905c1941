package controller

import (
	"context"
	"time"

	"github.com/fleetcore/agentfleet/internal/logging"
	"github.com/fleetcore/agentfleet/internal/store"
	"github.com/fleetcore/agentfleet/internal/worldstate"
)

// fastReconnectReasons are the three in-core forced-disconnect reasons
// that use the shorter ~700ms reconnect base delay with no streak penalty,
// per §4.9's reconnect pipeline.
var fastReconnectReasons = map[string]bool{
	"subgoal_timeout":   true,
	"subgoal_idle_stall": true,
	"stuck_recovery":    true,
}

// forceDisconnect implements the forced-disconnect half of §4.9's
// reconnect pipeline: mark DISCONNECTED, requeue the interrupted subgoal
// at head if under the retry limit, invalidate caches, log an incident,
// and schedule the reconnect attempt.
func (c *Controller) forceDisconnect(ctx context.Context, reason string) {
	now := nowMs()

	c.mu.Lock()
	c.state = worldstate.StateDisconnected
	wasBusy := c.task.Busy
	cur := c.task.CurrentSubgoal
	c.task.Busy = false
	c.task.CurrentSubgoal = nil
	if cur != nil && cur.RetryCount < c.cfg.RetryLimit {
		c.task.PushHead(cur.Retry(now, now))
	}
	c.speculative = nil
	c.lastProbeAt = 0
	c.lastProgressAt = 0
	c.inactiveSince = 0

	fast := fastReconnectReasons[reason]
	streak := c.reconnectStreak
	if !fast {
		c.reconnectStreak++
	} else {
		c.reconnectStreak = 0
	}
	c.mu.Unlock()

	if wasBusy {
		c.skillLimiter.Leave(c.agentID)
	}

	if c.st != nil {
		if err := c.st.RecordIncident(c.agentID, incidentCategoryFor(reason), reason, now); err != nil {
			logging.ControllerError("agent=%s incident persist failed: %v", c.agentID, err)
		}
	}

	delay := c.reconnectDelay(fast, streak)
	logging.ControllerWarn("agent=%s forced disconnect reason=%s reconnect_delay=%dms", c.agentID, reason, delay)

	go c.runReconnect(ctx, delay)
}

func incidentCategoryFor(reason string) store.IncidentCategory {
	switch reason {
	case "subgoal_timeout":
		return store.IncidentSubgoalTimeout
	case "subgoal_idle_stall":
		return store.IncidentIdleStall
	case "stuck_recovery":
		return store.IncidentStuckRecovery
	case "kick", "end":
		return store.IncidentKick
	default:
		return store.IncidentKick
	}
}

// reconnectDelay computes base_delay + uniform(0,jitter) + streak_penalty
// for non-fast reasons, or the fixed ~700ms fast-recovery delay otherwise.
// The per-streak penalty (1s/streak) is this implementation's own decision
// where spec.md names the term but not its magnitude.
func (c *Controller) reconnectDelay(fast bool, streak int) int64 {
	if fast {
		return 700
	}
	penalty := int64(streak) * 1000
	return c.cfg.ReconnectBaseDelayMs + c.jitterUniform(c.cfg.ReconnectJitterMs) + penalty
}

// runReconnect waits delay then dials a fresh Agent handle through the
// reconnect hook, reattaching the Reflex Monitor on success. A failed
// attempt is logged as an incident and retried once more at the same
// delay; ctx cancellation (orchestrator shutdown) aborts the loop.
func (c *Controller) runReconnect(ctx context.Context, delay int64) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(delay) * time.Millisecond):
	}

	if c.reconnect == nil {
		return
	}

	ag, err := c.reconnect(ctx)
	if err != nil {
		logging.ControllerError("agent=%s reconnect attempt failed: %v", c.agentID, err)
		if c.st != nil {
			_ = c.st.RecordIncident(c.agentID, store.IncidentReconnectFailed, err.Error(), nowMs())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(delay) * time.Millisecond):
		}
		ag, err = c.reconnect(ctx)
		if err != nil {
			logging.ControllerError("agent=%s reconnect retry failed, giving up: %v", c.agentID, err)
			return
		}
	}

	c.mu.Lock()
	c.ag = ag
	c.state = worldstate.StateConnectedIdle
	c.inactiveSince = nowMs()
	c.mu.Unlock()

	if c.reflexMon != nil {
		c.reflexMon.Stop()
	}
	c.attachReflex(ctx)
}
