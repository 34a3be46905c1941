// Package ratelimit implements the shared rolling-hour sliding-window rate
// limiter: per-agent and global FIFO timestamp windows, pruned lazily on
// every consume.
package ratelimit

import (
	"sync"
	"time"

	"github.com/fleetcore/agentfleet/internal/logging"
)

// DenyReason is one of the two denial reasons a consume can return.
type DenyReason string

const (
	ReasonBotCap    DenyReason = "BOT_CAP"
	ReasonGlobalCap DenyReason = "GLOBAL_CAP"
)

const windowMs = int64(3600_000)

// Decision is the result of a consume call.
type Decision struct {
	Allowed      bool
	Reason       DenyReason
	RetryAfterMs int64
}

// Limiter holds the shared per-agent and global FIFO windows. It is owned
// by the Fleet Orchestrator and safe for concurrent use by any agent.
type Limiter struct {
	mu       sync.Mutex
	perAgent map[string][]int64
	global   []int64

	perAgentCap int
	globalCap   int
}

// New constructs a Limiter with the given hourly caps.
func New(perAgentCap, globalCap int) *Limiter {
	return &Limiter{
		perAgent:    make(map[string][]int64),
		perAgentCap: perAgentCap,
		globalCap:   globalCap,
	}
}

func prune(timestamps []int64, nowMs int64) []int64 {
	cutoff := nowMs - windowMs
	i := 0
	for i < len(timestamps) && timestamps[i] < cutoff {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append([]int64(nil), timestamps[i:]...)
}

func retryAfter(timestamps []int64, nowMs int64) int64 {
	if len(timestamps) == 0 {
		return 1000
	}
	ra := timestamps[0] + windowMs - nowMs
	if ra < 1000 {
		ra = 1000
	}
	return ra
}

// Consume evaluates the per-agent cap first, then the global cap, admitting
// atomically: no timestamp is recorded on denial. Threshold comparisons use
// "<" for the denial boundary, so a cap of 24 denies the 25th call.
func (l *Limiter) Consume(agentID string, nowMs int64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.perAgent[agentID] = prune(l.perAgent[agentID], nowMs)
	l.global = prune(l.global, nowMs)

	if !(len(l.perAgent[agentID]) < l.perAgentCap) {
		d := Decision{Allowed: false, Reason: ReasonBotCap, RetryAfterMs: retryAfter(l.perAgent[agentID], nowMs)}
		logging.RateLimitDebug("consume denied agent=%s reason=%s retry_after=%dms", agentID, d.Reason, d.RetryAfterMs)
		return d
	}
	if !(len(l.global) < l.globalCap) {
		d := Decision{Allowed: false, Reason: ReasonGlobalCap, RetryAfterMs: retryAfter(l.global, nowMs)}
		logging.RateLimitDebug("consume denied agent=%s reason=%s retry_after=%dms", agentID, d.Reason, d.RetryAfterMs)
		return d
	}

	l.perAgent[agentID] = append(l.perAgent[agentID], nowMs)
	l.global = append(l.global, nowMs)
	return Decision{Allowed: true}
}

// CallsInLastHour returns the pruned count for agentID, or the global count
// if agentID is empty.
func (l *Limiter) CallsInLastHour(agentID string, nowMs int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if agentID == "" {
		l.global = prune(l.global, nowMs)
		return len(l.global)
	}
	l.perAgent[agentID] = prune(l.perAgent[agentID], nowMs)
	return len(l.perAgent[agentID])
}

// NowMs is a small helper so callers pass a consistent clock reading;
// production code should thread a single "now" through a tick rather than
// calling time.Now() in multiple places.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
