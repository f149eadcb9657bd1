package throttle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Dedup suppresses identical reply text per conversation inside a
// sliding window. Entries live in a bounded FIFO; once full, recording
// a new entry evicts the oldest regardless of age.
type Dedup struct {
	capacity int
	window   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time
	order []string
}

// NewDedup creates a suppressor holding at most capacity entries, each
// valid for window.
func NewDedup(capacity int, window time.Duration) *Dedup {
	if capacity <= 0 {
		capacity = 50
	}
	return &Dedup{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		seen:     make(map[string]time.Time),
	}
}

func dedupKey(conversationID int64, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%d/%s", conversationID, hex.EncodeToString(sum[:8]))
}

// Seen reports whether the same text was recorded for the conversation
// inside the window.
func (d *Dedup) Seen(conversationID int64, text string) bool {
	key := dedupKey(conversationID, text)
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.seen[key]
	if !ok {
		return false
	}
	return d.now().Sub(at) < d.window
}

// Record notes that text was emitted for the conversation now.
func (d *Dedup) Record(conversationID int64, text string) {
	key := dedupKey(conversationID, text)
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		d.seen[key] = d.now()
		return
	}

	d.seen[key] = d.now()
	d.order = append(d.order, key)
	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
}

// Len returns the number of tracked entries.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
