package reply

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/qqclaw/internal/history"
	"github.com/nextlevelbuilder/qqclaw/internal/message"
)

// Verdict is a judge's answer under either supported contract: a binary
// accept/reject, or a numeric interest score in [0,10] (Scored=true).
type Verdict struct {
	Accept bool
	Score  float64
	Scored bool
}

// Judge is the external reply-worthiness service.
type Judge interface {
	Judge(ctx context.Context, msgText string, turns []history.Turn) (Verdict, error)
}

// Generator is the external reply-generation service.
type Generator interface {
	Generate(ctx context.Context, turns []history.Turn, senderName, msgText string) (string, error)
}

// Options tune the decision engine.
type Options struct {
	BotName           string
	Probability       float64 // percent, 0..100
	MinMessages       int
	InterestThreshold float64 // 0..10, scored contract only
	ContextTurns      int     // turns handed to the judge
}

const maxInterest = 10

// Engine is the reply-decision state machine, evaluated per inbound
// non-bot text message:
//
//  1. a resolved @<bot-name> mention forces maximum interest and skips
//     every gate, including the volume gate;
//  2. the probability gate (bypassed when the bare bot name appears);
//  3. the volume/cooldown gate (see Tracker.AllowVolume);
//  4. the judge gate, binary or scored.
//
// The engine never mutates state; commit happens via Tracker.RecordReply
// only after a reply is actually emitted.
type Engine struct {
	opts    Options
	tracker *Tracker
	judge   Judge
	rand    func() float64 // uniform [0,1); injectable for tests
}

func NewEngine(opts Options, tracker *Tracker, judge Judge) *Engine {
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = 5
	}
	return &Engine{
		opts:    opts,
		tracker: tracker,
		judge:   judge,
		rand:    rand.Float64,
	}
}

// Decision is the engine's answer for one message.
type Decision struct {
	Reply    bool
	Interest float64
	Reason   string
}

// Evaluate runs the gates for one message. turns is the conversation
// snapshot taken before the message was recorded.
func (e *Engine) Evaluate(ctx context.Context, msg *message.Message, turns []history.Turn) Decision {
	if e.mentioned(msg.Text) {
		slog.Info("bot mentioned, interest forced to maximum", "group_id", msg.ConversationID)
		return Decision{Reply: true, Interest: maxInterest, Reason: "mention"}
	}

	nameInText := e.opts.BotName != "" && strings.Contains(msg.Text, e.opts.BotName)

	if !nameInText {
		if e.rand() >= e.opts.Probability/100 {
			return Decision{Reason: "probability"}
		}
	}

	if !e.tracker.AllowVolume(msg.ConversationID, e.opts.MinMessages) {
		return Decision{Reason: "volume"}
	}

	if len(turns) > e.opts.ContextTurns {
		turns = turns[len(turns)-e.opts.ContextTurns:]
	}

	verdict, err := e.judge.Judge(ctx, msg.Text, turns)
	if err != nil {
		slog.Warn("judge call failed, suppressing reply", "group_id", msg.ConversationID, "error", err)
		return Decision{Reason: "judge error"}
	}

	if !verdict.Scored {
		if verdict.Accept {
			return Decision{Reply: true, Reason: "judge accept"}
		}
		return Decision{Reason: "judge reject"}
	}

	score := e.adjustScore(verdict.Score, msg.Text, nameInText)
	if score >= e.opts.InterestThreshold {
		return Decision{Reply: true, Interest: score, Reason: "interest"}
	}
	return Decision{Interest: score, Reason: "low interest"}
}

// adjustScore applies the interest adjustments: +5 when the bare bot
// name appears, clamp to 10, then penalize very short messages that do
// not mention the name by (6 - length).
func (e *Engine) adjustScore(base float64, text string, nameInText bool) float64 {
	score := base
	if nameInText {
		score += 5
	}
	if score > maxInterest {
		score = maxInterest
	}
	if length := utf8.RuneCountInString(text); length <= 5 && !nameInText {
		score -= float64(6 - length)
	}
	return score
}

func (e *Engine) mentioned(text string) bool {
	return e.opts.BotName != "" && strings.Contains(text, "@"+e.opts.BotName)
}
