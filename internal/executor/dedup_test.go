package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupFirstSightIsNotDuplicate(t *testing.T) {
	d := NewDedup(time.Minute)

	assert.False(t, d.IsDuplicate("opp-1"))
	assert.True(t, d.IsDuplicate("opp-1"))
	assert.False(t, d.IsDuplicate("opp-2"))
}

func TestDedupExpiredEntryIsSeenAgain(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	assert.False(t, d.IsDuplicate("opp-1"))
	time.Sleep(15 * time.Millisecond)
	assert.False(t, d.IsDuplicate("opp-1"))
}

func TestDedupCleanupDropsExpiredEntries(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	d.IsDuplicate("opp-1")
	d.IsDuplicate("opp-2")
	time.Sleep(15 * time.Millisecond)
	d.IsDuplicate("opp-3")

	d.Cleanup()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.NotContains(t, d.seen, "opp-1")
	assert.NotContains(t, d.seen, "opp-2")
	assert.Contains(t, d.seen, "opp-3")
}
