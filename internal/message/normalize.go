package message

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/qqclaw/internal/onebot"
)

// quotePreviewWidth bounds the display width of an embedded quote preview.
const quotePreviewWidth = 50

// QuoteFetcher fetches a referenced message for quote resolution.
// Satisfied by *onebot.Client.
type QuoteFetcher interface {
	GetMsg(ctx context.Context, messageID string) (*onebot.Event, error)
}

// Normalizer maps gateway events onto canonical Messages. Both the
// structured segment-array form and the raw CQ-string form collapse to
// the same classification with one precedence rule: the first media
// segment wins and ends normalization.
type Normalizer struct {
	fetcher QuoteFetcher // nil disables quote resolution
}

func NewNormalizer(fetcher QuoteFetcher) *Normalizer {
	return &Normalizer{fetcher: fetcher}
}

// Normalize converts a gateway event. Returns false for anything that
// is not a group message event.
func (n *Normalizer) Normalize(ctx context.Context, ev *onebot.Event) (*Message, bool) {
	if ev.PostType != "message" || ev.MessageType != "group" {
		return nil, false
	}

	msg := &Message{
		ConversationID: ev.GroupID,
		MessageID:      ev.MessageID,
		SenderID:       ev.UserID,
		SenderName:     senderName(ev),
	}

	if segs, ok := ev.Segments(); ok {
		msg.Kind, msg.Text, msg.MediaURL, msg.ReplyTargetID = n.fromSegments(ctx, segs, true)
	} else {
		msg.Kind, msg.Text, msg.MediaURL = classifyRaw(ev.RawMessage)
	}

	if msg.Kind != KindText {
		msg.Text = msg.Kind.Placeholder()
	}
	return msg, true
}

func senderName(ev *onebot.Event) string {
	if name := ev.Sender.Name(); name != "" {
		return name
	}
	if ev.UserID != 0 {
		return strconv.FormatInt(ev.UserID, 10)
	}
	return "未知用户"
}

// fromSegments flattens a segment array. resolveQuotes is false when we
// are already inside a quoted message, so quotes never nest.
func (n *Normalizer) fromSegments(ctx context.Context, segs []onebot.Segment, resolveQuotes bool) (Kind, string, string, string) {
	var parts []string
	var replyID string

	for _, seg := range segs {
		switch seg.Type {
		case "text":
			parts = append(parts, seg.Data.Text)
		case "at":
			if seg.Data.QQ != "" {
				parts = append(parts, "@"+seg.Data.QQ)
			}
		case "face":
			parts = append(parts, "[表情]")
		case "image":
			// Sticker images ride the image segment type; keep them inline.
			if isStickerFile(seg.Data.File) {
				parts = append(parts, "[表情]")
				continue
			}
			return KindImage, "", seg.Data.URL, replyID
		case "record", "voice":
			return KindVoice, "", seg.Data.URL, replyID
		case "video":
			return KindVideo, "", seg.Data.URL, replyID
		case "file":
			return KindFile, "", seg.Data.URL, replyID
		case "reply":
			if seg.Data.ID == "" {
				continue
			}
			replyID = seg.Data.ID
			if resolveQuotes {
				parts = append(parts, n.quotePreview(ctx, seg.Data.ID))
			}
		}
	}

	return KindText, strings.TrimSpace(strings.Join(parts, "")), "", replyID
}

// quotePreview fetches the referenced message and embeds a bounded
// preview. Any failure degrades to a generic placeholder.
func (n *Normalizer) quotePreview(ctx context.Context, messageID string) string {
	if n.fetcher == nil {
		return "[引用消息]"
	}

	quoted, err := n.fetcher.GetMsg(ctx, messageID)
	if err != nil {
		slog.Debug("quote fetch failed", "message_id", messageID, "error", err)
		return "[引用消息]"
	}

	sender := quoted.Sender.Name()
	if sender == "" {
		sender = "未知用户"
	}

	var content string
	if segs, ok := quoted.Segments(); ok {
		kind, text, _, _ := n.fromSegments(ctx, segs, false)
		if kind != KindText {
			text = kind.Placeholder()
		}
		content = text
	} else {
		kind, text, _ := classifyRaw(quoted.RawMessage)
		if kind != KindText {
			text = kind.Placeholder()
		}
		content = text
	}

	if content == "" {
		return "[引用 " + sender + " 的消息]"
	}
	return "[引用 " + sender + ": " + runewidth.Truncate(content, quotePreviewWidth, "...") + "]"
}

// rawMarkers maps inline CQ markers to kinds, in precedence order.
var rawMarkers = []struct {
	marker string
	kind   Kind
}{
	{"[CQ:image", KindImage},
	{"[CQ:record", KindVoice},
	{"[CQ:voice", KindVoice},
	{"[CQ:video", KindVideo},
	{"[CQ:file", KindFile},
}

// classifyRaw scans a raw CQ string; the first matching media marker
// sets the kind, and an embedded url attribute is extracted when present.
func classifyRaw(raw string) (Kind, string, string) {
	for _, m := range rawMarkers {
		if !strings.Contains(raw, m.marker) {
			continue
		}
		return m.kind, "", extractURLAttr(raw)
	}
	return KindText, raw, ""
}

func extractURLAttr(raw string) string {
	start := strings.Index(raw, "url=")
	if start == -1 {
		return ""
	}
	rest := raw[start+len("url="):]
	end := strings.IndexAny(rest, ",]")
	if end == -1 {
		return ""
	}
	return rest[:end]
}

func isStickerFile(file string) bool {
	lower := strings.ToLower(file)
	return strings.Contains(lower, "face") || strings.HasPrefix(file, "[CQ:face")
}
