// Package admission implements the fleet-wide Skill Limiter (head-of-line
// FIFO fairness) and the simpler bounded Explorer Limiter (§4.3).
package admission

import "sync"

// SkillLimiter bounds fleet-wide concurrent skill execution while
// preserving FIFO fairness: a waiting agent cannot be overtaken by a later
// arrival while capacity is saturated.
type SkillLimiter struct {
	mu       sync.Mutex
	capacity int
	active   map[string]bool
	waiters  []string
}

// NewSkillLimiter constructs a SkillLimiter with the given capacity.
func NewSkillLimiter(capacity int) *SkillLimiter {
	return &SkillLimiter{capacity: capacity, active: make(map[string]bool)}
}

// TryEnter grants entry if agentID is already inside, or if it is at the
// head of the waiting FIFO and active count is below capacity. Non-head
// callers are appended to the waiters list (idempotent) and refused.
func (s *SkillLimiter) TryEnter(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[agentID] {
		return true
	}

	if len(s.active) < s.capacity && (len(s.waiters) == 0 || s.waiters[0] == agentID) {
		if len(s.waiters) > 0 && s.waiters[0] == agentID {
			s.waiters = s.waiters[1:]
		}
		s.active[agentID] = true
		return true
	}

	s.appendWaiterLocked(agentID)
	return false
}

func (s *SkillLimiter) appendWaiterLocked(agentID string) {
	for _, w := range s.waiters {
		if w == agentID {
			return
		}
	}
	s.waiters = append(s.waiters, agentID)
}

// Leave removes agentID from both the active set and the waiters list.
func (s *SkillLimiter) Leave(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, agentID)
	for i, w := range s.waiters {
		if w == agentID {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			break
		}
	}
}

// ActiveCount returns the current number of agents holding a slot.
func (s *SkillLimiter) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// ExplorerLimiter is a simple bounded set: try_enter is idempotent for the
// same agent.
type ExplorerLimiter struct {
	mu       sync.Mutex
	capacity int
	active   map[string]bool
}

// NewExplorerLimiter constructs an ExplorerLimiter with the given capacity.
func NewExplorerLimiter(capacity int) *ExplorerLimiter {
	return &ExplorerLimiter{capacity: capacity, active: make(map[string]bool)}
}

// TryEnter grants entry if agentID is already inside or there is free
// capacity.
func (e *ExplorerLimiter) TryEnter(agentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active[agentID] {
		return true
	}
	if len(e.active) >= e.capacity {
		return false
	}
	e.active[agentID] = true
	return true
}

// Leave removes agentID from the active set.
func (e *ExplorerLimiter) Leave(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, agentID)
}

// ActiveCount returns the current number of agents holding an explorer slot.
func (e *ExplorerLimiter) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
