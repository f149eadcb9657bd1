// Package throttle bounds outbound reply volume: a per-conversation
// rate limiter and a short-window duplicate suppressor.
package throttle

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrDropped is returned when the drop policy discards a reply that
// arrived inside the minimum interval.
var ErrDropped = errors.New("throttle: reply dropped, rate limited")

// ErrDelayTooLong is returned under the delay policy when honoring the
// limiter would exceed the configured maximum wait.
var ErrDelayTooLong = errors.New("throttle: required delay exceeds maximum")

// Policy selects what happens to a reply attempted inside the minimum
// interval.
type Policy string

const (
	// PolicyDrop discards the reply.
	PolicyDrop Policy = "drop"
	// PolicyDelay waits until the interval has passed, up to a cap.
	PolicyDelay Policy = "delay"
)

// Limiter enforces a minimum interval between emitted replies per
// conversation. Conversations are independent.
type Limiter struct {
	interval time.Duration
	policy   Policy
	maxDelay time.Duration

	mu    sync.Mutex
	convs map[int64]*rate.Limiter
}

// NewLimiter creates a limiter. interval <= 0 disables limiting.
func NewLimiter(interval time.Duration, policy Policy, maxDelay time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		policy:   policy,
		maxDelay: maxDelay,
		convs:    make(map[int64]*rate.Limiter),
	}
}

func (l *Limiter) limiter(conversationID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.convs[conversationID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.convs[conversationID] = lim
	}
	return lim
}

// Acquire blocks (delay policy) or fails fast (drop policy) until a
// reply may be emitted for the conversation. A nil return means the
// caller may send now.
func (l *Limiter) Acquire(ctx context.Context, conversationID int64) error {
	if l.interval <= 0 {
		return nil
	}
	lim := l.limiter(conversationID)

	if l.policy == PolicyDrop {
		if !lim.Allow() {
			return ErrDropped
		}
		return nil
	}

	res := lim.Reserve()
	delay := res.Delay()
	if l.maxDelay > 0 && delay > l.maxDelay {
		res.Cancel()
		return ErrDelayTooLong
	}
	if delay == 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	}
}
