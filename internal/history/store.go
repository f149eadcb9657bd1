// Package history keeps a bounded, ordered record of turns per
// conversation. One instance lives for the process lifetime; all
// operations on a single conversation are serialized.
package history

import (
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

// Turn is one recorded utterance.
type Turn struct {
	Role   string // "user" or "assistant"
	Author string
	Text   string
	At     time.Time
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store holds per-conversation bounded histories.
type Store struct {
	capacity   int
	maxTurnLen int // display width; 0 disables truncation

	mu    sync.Mutex
	convs map[int64]*conversation
}

type conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// NewStore creates a store with the given per-conversation capacity.
func NewStore(capacity, maxTurnLen int) *Store {
	if capacity <= 0 {
		capacity = 10
	}
	return &Store{
		capacity:   capacity,
		maxTurnLen: maxTurnLen,
		convs:      make(map[int64]*conversation),
	}
}

func (s *Store) conv(conversationID int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		c = &conversation{}
		s.convs[conversationID] = c
	}
	return c
}

// Append records a turn, evicting the oldest once past capacity.
// Overlong turn text is truncated with an ellipsis.
func (s *Store) Append(conversationID int64, turn Turn) {
	if s.maxTurnLen > 0 {
		turn.Text = runewidth.Truncate(turn.Text, s.maxTurnLen, "...")
	}
	if turn.At.IsZero() {
		turn.At = time.Now()
	}

	c := s.conv(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, turn)
	if len(c.turns) > s.capacity {
		// Shift instead of reslice so evicted turns are released.
		copy(c.turns, c.turns[len(c.turns)-s.capacity:])
		c.turns = c.turns[:s.capacity]
	}
}

// Snapshot returns the most recent limit turns in chronological order;
// limit <= 0 returns all. The result is a copy.
func (s *Store) Snapshot(conversationID int64, limit int) []Turn {
	c := s.conv(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.turns)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Turn, n)
	copy(out, c.turns[len(c.turns)-n:])
	return out
}

// Clear empties a conversation's history.
func (s *Store) Clear(conversationID int64) {
	c := s.conv(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// Len returns the number of recorded turns for a conversation.
func (s *Store) Len(conversationID int64) int {
	c := s.conv(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}
