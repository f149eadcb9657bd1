// Package plugins dispatches keyword-triggered actions on inbound
// messages. Actions are registered once at startup and immutable
// afterwards; dispatch scans them in registration order.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/qqclaw/internal/message"
)

// Capabilities is what a handler gets to act with. Handlers never touch
// shared connection state directly.
type Capabilities struct {
	GroupID   int64
	MessageID string   // resolved only for actions that want one
	Args      []string // extracted per the action's arity

	// Send posts text to a group. Revoke deletes a message by id.
	Send   func(groupID int64, text string) error
	Revoke func(groupID int64, messageID string) error
}

// Handler runs one action.
type Handler func(ctx context.Context, caps *Capabilities) error

// Action is one keyword-triggered behavior.
//
// Arity governs argument extraction from the text after the keyword:
// 0 passes nothing, 1 passes the trailing text verbatim, n>=2 splits on
// whitespace into at most n-1 tokens with the last absorbing the rest.
// WantsMessageID resolves a target message id instead: reply target,
// then an id in the trailing text, then the inbound message's own id.
type Action struct {
	Keyword        string
	Arity          int
	WantsMessageID bool
	Whitelist      []int64 // sender ids allowed to trigger; nil = everyone
	Handler        Handler
}

var messageIDRun = regexp.MustCompile(`-?\d+`)

// Router matches inbound text against registered actions.
type Router struct {
	send   func(groupID int64, text string) error
	revoke func(groupID int64, messageID string) error

	mu      sync.RWMutex
	actions []Action
	byKey   map[string]struct{}
}

// NewRouter creates a router whose handlers send and revoke through the
// given callbacks.
func NewRouter(send func(groupID int64, text string) error, revoke func(groupID int64, messageID string) error) *Router {
	return &Router{
		send:   send,
		revoke: revoke,
		byKey:  make(map[string]struct{}),
	}
}

// Register adds an action. Duplicate keywords are rejected.
func (r *Router) Register(a Action) error {
	if a.Keyword == "" {
		return fmt.Errorf("plugins: action keyword is empty")
	}
	if a.Handler == nil {
		return fmt.Errorf("plugins: action %q has no handler", a.Keyword)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byKey[a.Keyword]; dup {
		return fmt.Errorf("plugins: keyword %q already registered", a.Keyword)
	}
	r.byKey[a.Keyword] = struct{}{}
	r.actions = append(r.actions, a)
	return nil
}

// Keywords lists registered keywords in registration order.
func (r *Router) Keywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.actions))
	for i, a := range r.actions {
		out[i] = a.Keyword
	}
	return out
}

// Dispatch finds the first action whose keyword appears in the message
// text and runs it. It reports whether the message was handled; a
// whitelist refusal or a handler error leaves it unhandled so the
// message falls through to the normal reply pipeline.
func (r *Router) Dispatch(ctx context.Context, msg *message.Message) bool {
	r.mu.RLock()
	actions := r.actions
	r.mu.RUnlock()

	for _, a := range actions {
		if !strings.Contains(msg.Text, a.Keyword) {
			continue
		}

		if a.Whitelist != nil && !contains(a.Whitelist, msg.SenderID) {
			slog.Info("plugin action refused, sender not whitelisted",
				"keyword", a.Keyword, "sender_id", msg.SenderID, "group_id", msg.ConversationID)
			return false
		}

		caps := r.buildCapabilities(a, msg)
		if err := a.Handler(ctx, caps); err != nil {
			slog.Error("plugin action failed",
				"keyword", a.Keyword, "group_id", msg.ConversationID, "error", err)
			continue
		}
		slog.Debug("plugin action handled message",
			"keyword", a.Keyword, "group_id", msg.ConversationID)
		return true
	}
	return false
}

func (r *Router) buildCapabilities(a Action, msg *message.Message) *Capabilities {
	caps := &Capabilities{
		GroupID: msg.ConversationID,
		Send:    r.send,
		Revoke:  r.revoke,
	}

	trailing := trailingText(msg.Text, a.Keyword)

	if a.WantsMessageID {
		caps.MessageID = resolveMessageID(msg, trailing)
		return caps
	}

	switch {
	case a.Arity == 1:
		caps.Args = []string{trailing}
	case a.Arity >= 2:
		caps.Args = splitArgs(trailing, a.Arity-1)
	}
	return caps
}

func trailingText(text, keyword string) string {
	_, after, _ := strings.Cut(text, keyword)
	return strings.TrimSpace(after)
}

// splitArgs splits on runs of whitespace into at most max tokens, the
// last one absorbing the remainder verbatim. Missing tokens come back
// empty so handlers can index without checking length.
func splitArgs(trailing string, max int) []string {
	tokens := make([]string, 0, max)
	rest := trailing
	for len(tokens) < max-1 {
		rest = strings.TrimLeft(rest, " \t")
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			break
		}
		tokens = append(tokens, rest[:i])
		rest = rest[i:]
	}
	tokens = append(tokens, strings.TrimSpace(rest))
	for len(tokens) < max {
		tokens = append(tokens, "")
	}
	return tokens
}

// resolveMessageID picks the action's target message: the quoted
// message first, then an id written after the keyword, then the
// triggering message itself.
func resolveMessageID(msg *message.Message, trailing string) string {
	if msg.ReplyTargetID != "" {
		return msg.ReplyTargetID
	}
	if id := messageIDRun.FindString(trailing); id != "" {
		return id
	}
	return strconv.FormatInt(msg.MessageID, 10)
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
