// Package bot wires every component together and runs the message
// pipeline: normalize, resolve mentions, record context, dispatch
// plugin actions, decide, generate, throttle, send.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/qqclaw/internal/config"
	"github.com/nextlevelbuilder/qqclaw/internal/history"
	"github.com/nextlevelbuilder/qqclaw/internal/llm"
	"github.com/nextlevelbuilder/qqclaw/internal/mention"
	"github.com/nextlevelbuilder/qqclaw/internal/message"
	"github.com/nextlevelbuilder/qqclaw/internal/onebot"
	"github.com/nextlevelbuilder/qqclaw/internal/plugins"
	"github.com/nextlevelbuilder/qqclaw/internal/reply"
	"github.com/nextlevelbuilder/qqclaw/internal/throttle"
)

// maxWorkers bounds concurrent event processing so judge and generation
// latency never stalls the gateway receive loop.
const maxWorkers = 8

// Bot owns all components. Constructed once at startup; no package
// level mutable state anywhere in the pipeline.
type Bot struct {
	cfg    *config.Config
	client *onebot.Client

	normalizer *message.Normalizer
	resolver   *mention.Resolver
	history    *history.Store
	tracker    *reply.Tracker
	engine     *reply.Engine
	generator  reply.Generator
	captioner  *llm.Captioner // nil when captioning is disabled
	router     *plugins.Router
	limiter    *throttle.Limiter
	dedup      *throttle.Dedup
	filter     *wordFilter

	groups map[int64]struct{}
	sem    chan struct{}
	wg     sync.WaitGroup
}

// New builds a bot from validated config.
func New(cfg *config.Config) (*Bot, error) {
	client := onebot.NewClient(cfg.Gateway.URL(), time.Duration(cfg.Gateway.RequestTimeoutSec)*time.Second)

	cache, err := mention.OpenCache(cfg.Cache.NicknameFile)
	if err != nil {
		return nil, fmt.Errorf("bot: nickname cache: %w", err)
	}

	b := &Bot{
		cfg:        cfg,
		client:     client,
		normalizer: message.NewNormalizer(client),
		resolver:   mention.NewResolver(cfg.Bot.ID, cfg.Bot.Name, cache, client),
		history:    history.NewStore(cfg.Context.MaxTurns, cfg.Context.MaxTurnLength),
		tracker:    reply.NewTracker(time.Duration(cfg.Reply.WarmupSec) * time.Second),
		generator: llm.NewGenerator(cfg.Models.Reply, llm.Persona{
			Name:     cfg.Bot.Name,
			Core:     cfg.Bot.PersonalityCore,
			Side:     cfg.Bot.PersonalitySide,
			Identity: cfg.Bot.Identity,
		}),
		limiter: throttle.NewLimiter(
			time.Duration(cfg.Reply.MinIntervalSec)*time.Second,
			throttle.Policy(cfg.Reply.OverflowPolicy),
			time.Duration(cfg.Reply.MaxDelaySec)*time.Second,
		),
		dedup:  throttle.NewDedup(cfg.Reply.DedupEntries, time.Duration(cfg.Reply.DedupWindowSec)*time.Second),
		filter: newWordFilter(cfg.Filter.BlackTerms, cfg.Filter.Substitutes),
		groups: make(map[int64]struct{}, len(cfg.Gateway.GroupIDs)),
		sem:    make(chan struct{}, maxWorkers),
	}

	b.engine = reply.NewEngine(reply.Options{
		BotName:           cfg.Bot.Name,
		Probability:       cfg.Reply.Probability,
		MinMessages:       cfg.Reply.MinMessages,
		InterestThreshold: cfg.Reply.InterestThreshold,
		ContextTurns:      cfg.Reply.ContextTurns,
	}, b.tracker, llm.NewJudge(cfg.Models.Judge, cfg.Reply.JudgeMode, cfg.Bot.Name))

	if cfg.Models.CaptionEnabled {
		b.captioner = llm.NewCaptioner(cfg.Models.Caption)
	}

	for _, id := range cfg.Gateway.GroupIDs {
		b.groups[id] = struct{}{}
	}

	b.router = plugins.NewRouter(client.SendGroupMsg, client.DeleteMsg)
	if cfg.Plugins.BuiltinEnabled {
		if err := plugins.RegisterBuiltins(b.router, cfg.Plugins.AdminIDs); err != nil {
			return nil, fmt.Errorf("bot: register builtins: %w", err)
		}
	}

	return b, nil
}

// Router exposes the action registry so callers can add actions before
// Run.
func (b *Bot) Router() *plugins.Router { return b.router }

// Run connects to the gateway and processes events until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("bot starting",
		"name", b.cfg.Bot.Name,
		"gateway", b.cfg.Gateway.URL(),
		"groups", len(b.groups),
		"actions", len(b.router.Keywords()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.client.Run(ctx) })
	g.Go(func() error { return b.consume(ctx) })
	err := g.Wait()

	// Detached workers observe the cancelled context and drain on
	// their own; anything they try to send after this goes nowhere.
	b.wg.Wait()
	return err
}

// consume fans events out to a bounded worker pool. The receive path
// only blocks when all workers are busy.
func (b *Bot) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.client.Events():
			select {
			case <-ctx.Done():
				return ctx.Err()
			case b.sem <- struct{}{}:
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer func() { <-b.sem }()
				b.handleEvent(ctx, &ev)
			}()
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev *onebot.Event) {
	msg, ok := b.normalizer.Normalize(ctx, ev)
	if !ok {
		return
	}

	if _, allowed := b.groups[msg.ConversationID]; !allowed {
		slog.Debug("message from unlisted group dropped", "group_id", msg.ConversationID)
		return
	}
	if msg.SenderID == b.cfg.Bot.ID {
		return
	}

	b.describeMedia(ctx, msg)
	msg.Text = b.resolver.Replace(ctx, msg.Text, msg.ConversationID)

	slog.Debug("message received",
		"group_id", msg.ConversationID,
		"sender", msg.SenderName,
		"kind", msg.Kind.String())

	// Snapshot before recording so the judge sees the conversation as
	// it was when this message arrived.
	turns := b.history.Snapshot(msg.ConversationID, 0)

	b.tracker.RecordMessage(msg.ConversationID)
	handled := b.router.Dispatch(ctx, msg)

	b.history.Append(msg.ConversationID, history.Turn{
		Role:   history.RoleUser,
		Author: msg.SenderName,
		Text:   msg.Text,
	})

	if handled || msg.Kind != message.KindText {
		return
	}

	decision := b.engine.Evaluate(ctx, msg, turns)
	if !decision.Reply {
		slog.Debug("reply suppressed",
			"group_id", msg.ConversationID, "reason", decision.Reason)
		return
	}

	b.respond(ctx, msg, turns, decision)
}

// describeMedia upgrades an image placeholder to a captioned one when
// the captioner is available. Failures keep the plain placeholder.
func (b *Bot) describeMedia(ctx context.Context, msg *message.Message) {
	if msg.Kind != message.KindImage || b.captioner == nil || msg.MediaURL == "" {
		return
	}
	caption, err := b.captioner.Caption(ctx, msg.MediaURL)
	if err != nil {
		slog.Warn("image caption failed", "group_id", msg.ConversationID, "error", err)
		return
	}
	msg.Text = "[图片:" + caption + "]"
}

func (b *Bot) respond(ctx context.Context, msg *message.Message, turns []history.Turn, decision reply.Decision) {
	text, err := b.generator.Generate(ctx, turns, msg.SenderName, msg.Text)
	if err != nil {
		slog.Warn("generation failed", "group_id", msg.ConversationID, "error", err)
		return
	}

	text, sendable := b.filter.Apply(text)
	if !sendable {
		slog.Info("reply suppressed by word filter", "group_id", msg.ConversationID)
		return
	}

	if b.dedup.Seen(msg.ConversationID, text) {
		slog.Info("duplicate reply suppressed", "group_id", msg.ConversationID)
		return
	}

	if err := b.limiter.Acquire(ctx, msg.ConversationID); err != nil {
		slog.Info("reply throttled", "group_id", msg.ConversationID, "error", err)
		return
	}

	if err := b.client.SendGroupMsg(msg.ConversationID, text); err != nil {
		slog.Warn("send failed", "group_id", msg.ConversationID, "error", err)
		return
	}

	b.dedup.Record(msg.ConversationID, text)
	b.tracker.RecordReply(msg.ConversationID)
	b.history.Append(msg.ConversationID, history.Turn{
		Role:   history.RoleAssistant,
		Author: b.cfg.Bot.Name,
		Text:   text,
	})
	slog.Info("reply sent",
		"group_id", msg.ConversationID,
		"reason", decision.Reason,
		"interest", decision.Interest)
}
