// Package reply decides whether an inbound message earns a generated
// reply, and tracks the per-conversation state that decision needs.
package reply

import (
	"sync"
	"time"
)

// State is the reply bookkeeping for one conversation. LastReplyTime is
// initialized to the creation time; a conversation counts as
// "never replied" until the warm-up window since creation has elapsed.
type State struct {
	LastReplyTime   time.Time
	LastMessageTime time.Time
	PendingCount    int // messages since the last emitted reply
	CreatedAt       time.Time
}

// Tracker owns reply state for all conversations. Mutations for one
// conversation are serialized; conversations never affect each other.
type Tracker struct {
	warmup time.Duration
	now    func() time.Time

	mu     sync.Mutex
	states map[int64]*State
}

// NewTracker creates a tracker with the given warm-up window.
func NewTracker(warmup time.Duration) *Tracker {
	if warmup <= 0 {
		warmup = time.Minute
	}
	return &Tracker{
		warmup: warmup,
		now:    time.Now,
		states: make(map[int64]*State),
	}
}

func (t *Tracker) state(conversationID int64) *State {
	s, ok := t.states[conversationID]
	if !ok {
		now := t.now()
		s = &State{LastReplyTime: now, CreatedAt: now}
		t.states[conversationID] = s
	}
	return s
}

// RecordMessage counts one inbound message for a conversation.
func (t *Tracker) RecordMessage(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(conversationID)
	s.PendingCount++
	s.LastMessageTime = t.now()
}

// RecordReply marks an emitted reply: the pending count resets and the
// reply timestamp advances. Called only after a reply actually went out.
func (t *Tracker) RecordReply(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(conversationID)
	s.LastReplyTime = t.now()
	s.PendingCount = 0
}

// AllowVolume evaluates the volume gate: unconditionally open during the
// warm-up window before the first reply, afterwards it requires at least
// minMessages pending since the last reply.
func (t *Tracker) AllowVolume(conversationID int64, minMessages int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(conversationID)

	everReplied := s.LastReplyTime.After(s.CreatedAt)
	if !everReplied && t.now().Sub(s.CreatedAt) < t.warmup {
		return true
	}
	return s.PendingCount >= minMessages
}

// Snapshot returns a copy of a conversation's state.
func (t *Tracker) Snapshot(conversationID int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.state(conversationID)
}

// Reset drops a conversation's state entirely.
func (t *Tracker) Reset(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, conversationID)
}
