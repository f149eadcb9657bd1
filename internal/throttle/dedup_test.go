package throttle

import (
	"fmt"
	"testing"
	"time"
)

func newTestDedup(capacity int, window time.Duration) (*Dedup, *time.Time) {
	d := NewDedup(capacity, window)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, &now
}

func TestDedupWindow(t *testing.T) {
	d, now := newTestDedup(50, 5*time.Minute)

	if d.Seen(1, "哈喽") {
		t.Error("fresh text should not be seen")
	}
	d.Record(1, "哈喽")
	if !d.Seen(1, "哈喽") {
		t.Error("recorded text should be seen inside the window")
	}

	*now = now.Add(6 * time.Minute)
	if d.Seen(1, "哈喽") {
		t.Error("expired entry should not be seen")
	}
}

func TestDedupPerConversation(t *testing.T) {
	d, _ := newTestDedup(50, time.Minute)
	d.Record(1, "同一句话")
	if d.Seen(2, "同一句话") {
		t.Error("other conversation must not be affected")
	}
}

func TestDedupEviction(t *testing.T) {
	d, _ := newTestDedup(50, time.Hour)
	for i := 0; i < 50; i++ {
		d.Record(1, fmt.Sprintf("reply-%d", i))
	}
	if d.Len() != 50 {
		t.Fatalf("Len = %d, want 50", d.Len())
	}

	d.Record(1, "one more")
	if d.Len() != 50 {
		t.Fatalf("Len after overflow = %d, want 50", d.Len())
	}
	if d.Seen(1, "reply-0") {
		t.Error("oldest entry should have been evicted")
	}
	if !d.Seen(1, "reply-1") {
		t.Error("second-oldest entry should survive")
	}
	if !d.Seen(1, "one more") {
		t.Error("newest entry missing")
	}
}
