package ws

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	typingTTL       = 5 * time.Second
	typingSweepSpec = "*/2 * * * * *" // every 2 seconds
)

type typingKey struct {
	conversation string
	userId       int64
}

// TypingTracker is the transient "who is typing where" store. Entries expire
// after typingTTL; a background sweep prunes them, and reads skip expired entries
// so the TTL holds regardless of sweep timing. Expiry is not broadcast, clients
// treat the 5 second silence as an implicit stop.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[typingKey]time.Time // expiry per (conversation, user)
	ttl     time.Duration
	now     func() time.Time
	cron    *cron.Cron
}

func NewTypingTracker() *TypingTracker {
	return newTypingTracker(typingTTL, time.Now)
}

func newTypingTracker(ttl time.Duration, now func() time.Time) *TypingTracker {
	return &TypingTracker{
		entries: make(map[typingKey]time.Time),
		ttl:     ttl,
		now:     now,
	}
}

// Run starts the periodic sweep. Call Close to stop it.
func (t *TypingTracker) Run() {
	t.cron = cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := t.cron.AddFunc(typingSweepSpec, t.sweep)
	if err != nil {
		panic(err)
	}
	t.cron.Start()
}

func (t *TypingTracker) Close() {
	if t.cron != nil {
		t.cron.Stop()
	}
}

// Start records that the user is typing in the conversation, overwriting any
// previous indicator.
func (t *TypingTracker) Start(conversation string, userId int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[typingKey{conversation, userId}] = t.now().Add(t.ttl)
}

func (t *TypingTracker) Stop(conversation string, userId int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, typingKey{conversation, userId})
}

// Active returns the ids of users currently typing in the conversation.
func (t *TypingTracker) Active(conversation string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	ids := make([]int64, 0)
	for key, expiresAt := range t.entries {
		if key.conversation != conversation {
			continue
		}
		if !expiresAt.After(now) {
			continue
		}
		ids = append(ids, key.userId)
	}
	return ids
}

func (t *TypingTracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for key, expiresAt := range t.entries {
		if !expiresAt.After(now) {
			delete(t.entries, key)
		}
	}
}
