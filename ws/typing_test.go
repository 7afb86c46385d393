package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingTrackerStartStop(t *testing.T) {
	tr := newTypingTracker(5*time.Second, time.Now)

	tr.Start("chatroom:7", 1)
	tr.Start("chatroom:7", 2)
	tr.Start("chatroom:8", 3)

	assert.ElementsMatch(t, []int64{1, 2}, tr.Active("chatroom:7"))
	assert.ElementsMatch(t, []int64{3}, tr.Active("chatroom:8"))

	tr.Stop("chatroom:7", 1)
	assert.ElementsMatch(t, []int64{2}, tr.Active("chatroom:7"))
}

func TestTypingTrackerTTL(t *testing.T) {
	base := time.Now()
	current := base
	tr := newTypingTracker(5*time.Second, func() time.Time { return current })

	tr.Start("chatroom:7", 1)
	assert.ElementsMatch(t, []int64{1}, tr.Active("chatroom:7"))

	// expired entries are invisible to readers regardless of sweep timing
	current = base.Add(5*time.Second + time.Millisecond)
	assert.Empty(t, tr.Active("chatroom:7"))

	tr.sweep()
	tr.mu.Lock()
	assert.Empty(t, tr.entries)
	tr.mu.Unlock()
}

func TestTypingTrackerRestartOverwrites(t *testing.T) {
	base := time.Now()
	current := base
	tr := newTypingTracker(5*time.Second, func() time.Time { return current })

	tr.Start("chatroom:7", 1)
	current = base.Add(4 * time.Second)
	// a repeated start pushes the expiry out
	tr.Start("chatroom:7", 1)
	current = base.Add(8 * time.Second)
	assert.ElementsMatch(t, []int64{1}, tr.Active("chatroom:7"))
	current = base.Add(10 * time.Second)
	assert.Empty(t, tr.Active("chatroom:7"))
}
