// Package message turns raw gateway events into the canonical Message
// the rest of the pipeline operates on.
package message

// Kind classifies a normalized message.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindVoice
	KindVideo
	KindFile
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVoice:
		return "voice"
	case KindVideo:
		return "video"
	case KindFile:
		return "file"
	case KindSystem:
		return "system"
	}
	return "unknown"
}

// Placeholder returns the inline marker recorded for non-text kinds.
func (k Kind) Placeholder() string {
	switch k {
	case KindImage:
		return "[图片]"
	case KindVoice:
		return "[语音]"
	case KindVideo:
		return "[视频]"
	case KindFile:
		return "[文件]"
	}
	return ""
}

// Message is the canonical form of one inbound group message.
// Immutable once normalized.
type Message struct {
	ConversationID int64
	MessageID      int64
	SenderID       int64
	SenderName     string
	Kind           Kind
	Text           string
	MediaURL       string // set for media kinds when the gateway provides one
	ReplyTargetID  string // id of the quoted message, when present
}
