package mention

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/qqclaw/internal/onebot"
)

// Lookup is the gateway subset the resolver needs.
// Satisfied by *onebot.Client.
type Lookup interface {
	GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (*onebot.MemberInfo, error)
	GetStrangerInfo(ctx context.Context, userID int64) (*onebot.UserInfo, error)
}

// Resolver maps account ids to display names: the bot's own id resolves
// to its configured name, everything else goes cache → group member
// lookup (card preferred) → stranger lookup → the raw id.
type Resolver struct {
	botID   string
	botName string
	cache   *Cache
	lookup  Lookup
}

func NewResolver(botID int64, botName string, cache *Cache, lookup Lookup) *Resolver {
	return &Resolver{
		botID:   strconv.FormatInt(botID, 10),
		botName: botName,
		cache:   cache,
		lookup:  lookup,
	}
}

// Resolve returns the display name for an id. Lookup failures fall back
// to the id itself and are never cached.
func (r *Resolver) Resolve(ctx context.Context, id string, groupID int64) string {
	if id == r.botID {
		return r.botName
	}

	if name, ok := r.cache.Get(id); ok {
		return name
	}

	name := r.fetchName(ctx, id, groupID)
	if name == "" {
		return id
	}
	if err := r.cache.Put(id, name); err != nil {
		slog.Warn("nickname cache write failed", "id", id, "error", err)
	}
	return name
}

func (r *Resolver) fetchName(ctx context.Context, id string, groupID int64) string {
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || r.lookup == nil {
		return ""
	}

	if groupID != 0 {
		member, err := r.lookup.GetGroupMemberInfo(ctx, groupID, userID)
		if err == nil {
			if member.Card != "" {
				return member.Card
			}
			if member.Nickname != "" {
				return member.Nickname
			}
		} else {
			slog.Debug("group member lookup failed", "user_id", id, "group_id", groupID, "error", err)
		}
	}

	info, err := r.lookup.GetStrangerInfo(ctx, userID)
	if err != nil {
		slog.Debug("stranger lookup failed", "user_id", id, "error", err)
		return ""
	}
	return info.Nickname
}

// Replace substitutes every reference with "@<display name>",
// left to right, leaving unmatched spans untouched. Ids that fail to
// resolve keep their "@<id>" form, so Replace is idempotent once all
// names are known.
func (r *Resolver) Replace(ctx context.Context, text string, groupID int64) string {
	replaced := cqAtPattern.ReplaceAllStringFunc(text, func(m string) string {
		id := cqAtPattern.FindStringSubmatch(m)[1]
		return "@" + r.Resolve(ctx, id, groupID)
	})
	return bareAtPattern.ReplaceAllStringFunc(replaced, func(m string) string {
		id := bareAtPattern.FindStringSubmatch(m)[1]
		return "@" + r.Resolve(ctx, id, groupID)
	})
}

// BotMentioned reports whether the resolved text addresses the bot.
func (r *Resolver) BotMentioned(text string) bool {
	return r.botName != "" && strings.Contains(text, "@"+r.botName)
}
