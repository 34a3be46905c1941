package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkillLimiter_FIFOFairness(t *testing.T) {
	l := NewSkillLimiter(1)

	assert.True(t, l.TryEnter("A"))
	assert.False(t, l.TryEnter("B")) // B joins waiters behind A's occupancy
	assert.False(t, l.TryEnter("B")) // idempotent re-check, still refused

	l.Leave("A")
	assert.True(t, l.TryEnter("B"))
}

func TestSkillLimiter_LaterArrivalCannotOvertake(t *testing.T) {
	l := NewSkillLimiter(1)

	assert.True(t, l.TryEnter("A"))
	assert.False(t, l.TryEnter("B"))
	assert.False(t, l.TryEnter("C")) // C arrives after B, must not jump ahead

	l.Leave("A")
	assert.False(t, l.TryEnter("C")) // B is at the head, not C
	assert.True(t, l.TryEnter("B"))
}

func TestSkillLimiter_AlreadyActiveIsIdempotent(t *testing.T) {
	l := NewSkillLimiter(2)
	assert.True(t, l.TryEnter("A"))
	assert.True(t, l.TryEnter("A"))
	assert.Equal(t, 1, l.ActiveCount())
}

func TestExplorerLimiter_BoundedAndIdempotent(t *testing.T) {
	l := NewExplorerLimiter(2)
	assert.True(t, l.TryEnter("A"))
	assert.True(t, l.TryEnter("A"))
	assert.True(t, l.TryEnter("B"))
	assert.False(t, l.TryEnter("C"))

	l.Leave("A")
	assert.True(t, l.TryEnter("C"))
}
