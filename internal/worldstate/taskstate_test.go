package worldstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetcore/agentfleet/internal/subgoal"
)

func TestTriggerSet(t *testing.T) {
	ts := NewTriggerSet()
	assert.True(t, ts.Empty())

	ts.Add(TriggerStuck)
	ts.Add(TriggerStuck)
	assert.True(t, ts.Has(TriggerStuck))
	assert.Len(t, ts.List(), 1)

	ts.Remove(TriggerStuck)
	assert.False(t, ts.Has(TriggerStuck))
	assert.True(t, ts.Empty())

	ts.Add(TriggerNightfall)
	ts.Add(TriggerAttacked)
	ts.Clear()
	assert.True(t, ts.Empty())
}

func TestTaskState_Invariant(t *testing.T) {
	task := NewTaskState(10)
	assert.True(t, task.Invariant())

	task.Busy = true
	assert.False(t, task.Invariant())

	rt := subgoal.NewRuntime(subgoal.Subgoal{Name: subgoal.Goto}, 0)
	task.CurrentSubgoal = &rt
	assert.True(t, task.Invariant())
}

func TestTaskState_QueueOperations(t *testing.T) {
	task := NewTaskState(10)
	a := subgoal.NewRuntime(subgoal.Subgoal{Name: subgoal.Goto}, 0)
	b := subgoal.NewRuntime(subgoal.Subgoal{Name: subgoal.Collect}, 0)

	task.PushTail(a)
	task.PushTail(b)
	assert.Len(t, task.Queue, 2)

	task.PushHead(b)
	assert.Equal(t, subgoal.Collect, task.Queue[0].Name)

	popped := task.PopAt(0)
	assert.Equal(t, subgoal.Collect, popped.Name)
	assert.Len(t, task.Queue, 2)

	task.ClearQueue()
	assert.Nil(t, task.Queue)
}

func TestTaskState_NextReady(t *testing.T) {
	task := NewTaskState(10)
	future := subgoal.NewRuntime(subgoal.Subgoal{Name: subgoal.Goto}, 0)
	future.NotBeforeMs = 5000
	ready := subgoal.NewRuntime(subgoal.Subgoal{Name: subgoal.Collect}, 0)
	ready.NotBeforeMs = 1000

	task.PushTail(future)
	task.PushTail(ready)

	assert.Equal(t, -1, task.NextReady(500))
	assert.Equal(t, 1, task.NextReady(2000))
}

func TestTaskState_HoistEarliest(t *testing.T) {
	task := NewTaskState(10)
	assert.NotPanics(t, func() { task.HoistEarliest(1000) })

	later := subgoal.NewRuntime(subgoal.Subgoal{Name: subgoal.Goto}, 0)
	later.NotBeforeMs = 9000
	earlier := subgoal.NewRuntime(subgoal.Subgoal{Name: subgoal.Collect}, 0)
	earlier.NotBeforeMs = 7000

	task.PushTail(later)
	task.PushTail(earlier)
	task.HoistEarliest(1000)

	assert.Equal(t, int64(9000), task.Queue[0].NotBeforeMs)
	assert.Equal(t, int64(1000), task.Queue[1].NotBeforeMs)
}

func TestHistory_EvictsOldestAtCapacity(t *testing.T) {
	h := NewHistory(2)
	h.Append(HistoryEntry{SubgoalName: subgoal.Goto, TimestampMs: 1})
	h.Append(HistoryEntry{SubgoalName: subgoal.Collect, TimestampMs: 2})
	h.Append(HistoryEntry{SubgoalName: subgoal.Craft, TimestampMs: 3})

	assert.Equal(t, 2, h.Len())
	entries := h.Entries()
	assert.Equal(t, subgoal.Collect, entries[0].SubgoalName)
	assert.Equal(t, subgoal.Craft, entries[1].SubgoalName)
}

func TestHistory_DefaultCapacity(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 25; i++ {
		h.Append(HistoryEntry{TimestampMs: int64(i)})
	}
	assert.Equal(t, 20, h.Len())
}

func TestHistory_EntriesIsDefensiveCopy(t *testing.T) {
	h := NewHistory(5)
	h.Append(HistoryEntry{SubgoalName: subgoal.Goto})
	entries := h.Entries()
	entries[0].SubgoalName = subgoal.Craft
	assert.Equal(t, subgoal.Goto, h.Entries()[0].SubgoalName)
}
