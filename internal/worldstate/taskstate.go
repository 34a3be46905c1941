package worldstate

import "github.com/fleetcore/agentfleet/internal/subgoal"

// Trigger is a member of the closed set of events that cause the controller
// to consider calling the planner.
type Trigger string

const (
	TriggerIdle             Trigger = "IDLE"
	TriggerSubgoalCompleted Trigger = "SUBGOAL_COMPLETED"
	TriggerSubgoalFailed    Trigger = "SUBGOAL_FAILED"
	TriggerAttacked         Trigger = "ATTACKED"
	TriggerDeath            Trigger = "DEATH"
	TriggerStuck            Trigger = "STUCK"
	TriggerNightfall        Trigger = "NIGHTFALL"
	TriggerInventoryFull    Trigger = "INVENTORY_FULL"
	TriggerToolMissing      Trigger = "TOOL_MISSING"
	TriggerReconnect        Trigger = "RECONNECT"
)

// TriggerSet has set semantics: duplicates collapse.
type TriggerSet map[Trigger]bool

// NewTriggerSet constructs an empty trigger set.
func NewTriggerSet() TriggerSet { return make(TriggerSet) }

// Add inserts a trigger.
func (t TriggerSet) Add(tr Trigger) { t[tr] = true }

// Clear empties the set. DEATH clears the subgoal queue separately; this
// only clears pending triggers.
func (t TriggerSet) Clear() {
	for k := range t {
		delete(t, k)
	}
}

// Has reports whether tr is pending.
func (t TriggerSet) Has(tr Trigger) bool { return t[tr] }

// Remove clears a single pending trigger, leaving the rest intact.
func (t TriggerSet) Remove(tr Trigger) { delete(t, tr) }

// Empty reports whether no triggers are pending.
func (t TriggerSet) Empty() bool { return len(t) == 0 }

// List returns the pending triggers in no particular order.
func (t TriggerSet) List() []Trigger {
	out := make([]Trigger, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	return out
}

// AgentState names one of the visible Agent Controller states.
type AgentState string

const (
	StateDisconnected  AgentState = "DISCONNECTED"
	StateConnectedIdle AgentState = "CONNECTED_IDLE"
	StatePlanning      AgentState = "PLANNING"
	StateExecuting     AgentState = "EXECUTING"
	StateAwaitingRetry AgentState = "AWAITING_RETRY"
)

// TaskState is the mutable per-agent state the controller exclusively owns.
type TaskState struct {
	CurrentGoal           string
	CurrentSubgoal        *subgoal.RuntimeSubgoal
	Queue                 []subgoal.RuntimeSubgoal
	ProgressCounters      map[string]int
	LastError             string
	Busy                  bool
	PlannerCooldownUntilMs int64
	PendingTriggers       TriggerSet
	History               *History
}

// NewTaskState constructs a fresh, idle TaskState.
func NewTaskState(historyCapacity int) *TaskState {
	return &TaskState{
		ProgressCounters: make(map[string]int),
		PendingTriggers:  NewTriggerSet(),
		History:          NewHistory(historyCapacity),
	}
}

// Invariant reports whether busy ⇒ current_subgoal ≠ null holds; it returns
// false when violated and does not panic. Callers in the hot path should not
// call this, it exists for tests.
func (t *TaskState) Invariant() bool {
	if t.Busy && t.CurrentSubgoal == nil {
		return false
	}
	return true
}

// ClearQueue empties the subgoal queue, used on DEATH per the trigger set
// semantics ("DEATH clears the queue").
func (t *TaskState) ClearQueue() {
	t.Queue = nil
}

// NextReady returns the index of the first queue entry whose NotBeforeMs has
// arrived, or -1 if none are ready yet.
func (t *TaskState) NextReady(nowMs int64) int {
	for i, sg := range t.Queue {
		if sg.NotBeforeMs <= nowMs {
			return i
		}
	}
	return -1
}

// PopAt removes and returns the queue entry at index i.
func (t *TaskState) PopAt(i int) subgoal.RuntimeSubgoal {
	sg := t.Queue[i]
	t.Queue = append(t.Queue[:i], t.Queue[i+1:]...)
	return sg
}

// PushHead prepends a subgoal to the front of the queue (used for retries).
func (t *TaskState) PushHead(sg subgoal.RuntimeSubgoal) {
	t.Queue = append([]subgoal.RuntimeSubgoal{sg}, t.Queue...)
}

// PushTail appends a subgoal to the back of the queue.
func (t *TaskState) PushTail(sg subgoal.RuntimeSubgoal) {
	t.Queue = append(t.Queue, sg)
}

// HoistEarliest sets the earliest NotBeforeMs in the queue to now, used when
// the entire queue is still in the future ("queue entirely in future, hoist
// the earliest not_before_ms to now").
func (t *TaskState) HoistEarliest(nowMs int64) {
	if len(t.Queue) == 0 {
		return
	}
	earliest := 0
	for i := range t.Queue {
		if t.Queue[i].NotBeforeMs < t.Queue[earliest].NotBeforeMs {
			earliest = i
		}
	}
	t.Queue[earliest].NotBeforeMs = nowMs
}
