package lockmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquire_ContentionSequence(t *testing.T) {
	m := New(15_000, nil)
	now := int64(1_000_000)

	assert.True(t, m.Acquire("resource:oak_log", "A", now))
	assert.False(t, m.Acquire("resource:oak_log", "B", now))
	m.Release("resource:oak_log", "A", now)
	assert.True(t, m.Acquire("resource:oak_log", "B", now))
}

func TestAcquire_IdempotentSameOwner(t *testing.T) {
	m := New(15_000, nil)
	now := int64(1_000_000)

	assert.True(t, m.Acquire("k", "A", now))
	assert.True(t, m.Acquire("k", "A", now+100))
}

func TestHeartbeat_NonOwnerIsNoop(t *testing.T) {
	m := New(15_000, nil)
	now := int64(1_000_000)

	m.Acquire("k", "A", now)
	assert.False(t, m.Heartbeat("k", "B", now+100))
	owner, ok := m.OwnerOf("k", now+100)
	assert.True(t, ok)
	assert.Equal(t, "A", owner)
}

func TestRelease_NonOwnerIsNoop(t *testing.T) {
	m := New(15_000, nil)
	now := int64(1_000_000)

	m.Acquire("k", "A", now)
	m.Release("k", "B", now+100)
	owner, ok := m.OwnerOf("k", now+100)
	assert.True(t, ok)
	assert.Equal(t, "A", owner)
}

func TestLease_ExpiresLazily(t *testing.T) {
	m := New(1000, nil)
	now := int64(1_000_000)

	m.Acquire("k", "A", now)
	_, ok := m.OwnerOf("k", now+2000)
	assert.False(t, ok)
	assert.True(t, m.Acquire("k", "B", now+2000))
}

func TestInvariant_AtMostOneOwnerPerKey(t *testing.T) {
	m := New(15_000, nil)
	now := int64(1_000_000)

	owners := map[string]bool{}
	for _, agent := range []string{"A", "B", "C"} {
		if m.Acquire("k", agent, now) {
			owners[agent] = true
		}
	}
	assert.LessOrEqual(t, len(owners), 1)
}
