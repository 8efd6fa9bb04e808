// Package presence counts live connections per user.
package presence

import (
	"sync"

	"github.com/google/uuid"
)

// Emitter is told about online/offline transitions. It is called with the
// tracker lock held and must not block.
type Emitter interface {
	EmitPresence(userID uuid.UUID, online bool)
}

type EmitterFunc func(userID uuid.UUID, online bool)

func (f EmitterFunc) EmitPresence(userID uuid.UUID, online bool) { f(userID, online) }

// Tracker maps userID to the number of open connections. A user is online
// while the count is positive.
type Tracker struct {
	mu      sync.Mutex
	counts  map[uuid.UUID]int
	emitter Emitter
}

func NewTracker(emitter Emitter) *Tracker {
	return &Tracker{counts: make(map[uuid.UUID]int), emitter: emitter}
}

// SetEmitter replaces the emitter; used to break the construction cycle
// with the gateway.
func (t *Tracker) SetEmitter(e Emitter) {
	t.mu.Lock()
	t.emitter = e
	t.mu.Unlock()
}

// MarkOnline records a new connection and reports whether the user just
// came online.
func (t *Tracker) MarkOnline(userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[userID]++
	if t.counts[userID] != 1 {
		return false
	}
	if t.emitter != nil {
		t.emitter.EmitPresence(userID, true)
	}
	return true
}

// MarkOffline records a closed connection and reports whether it was the
// user's last one. Unknown users are ignored.
func (t *Tracker) MarkOffline(userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.counts[userID]
	if !ok {
		return false
	}
	if n > 1 {
		t.counts[userID] = n - 1
		return false
	}
	delete(t.counts, userID)
	if t.emitter != nil {
		t.emitter.EmitPresence(userID, false)
	}
	return true
}

func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID] > 0
}

func (t *Tracker) Count(userID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID]
}

// Snapshot calls fn with every online user while holding the tracker lock,
// so no transition is emitted until fn returns. fn must not block or call
// back into the tracker.
func (t *Tracker) Snapshot(fn func(online []uuid.UUID)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.onlineLocked())
}

// Online returns a snapshot of every online user.
func (t *Tracker) Online() []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onlineLocked()
}

func (t *Tracker) onlineLocked() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.counts))
	for id := range t.counts {
		ids = append(ids, id)
	}
	return ids
}
