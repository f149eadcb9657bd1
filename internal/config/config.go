package config

import "fmt"

// Config is the resolved runtime configuration for the bot.
// Loaded once at startup and immutable afterwards.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Bot     BotConfig     `json:"bot"`
	Reply   ReplyConfig   `json:"reply"`
	Context ContextConfig `json:"context"`
	Filter  FilterConfig  `json:"filter"`
	Models  ModelsConfig  `json:"models"`
	Cache   CacheConfig   `json:"cache"`
	Plugins PluginsConfig `json:"plugins"`
}

// GatewayConfig points at the OneBot/NapCat websocket endpoint.
type GatewayConfig struct {
	Host              string  `json:"host"`
	Port              int     `json:"port"`
	RequestTimeoutSec int     `json:"request_timeout_sec"` // per-action echo wait
	GroupIDs          []int64 `json:"group_ids"`           // group whitelist; empty = reject all
}

// URL returns the websocket endpoint for the gateway.
func (g GatewayConfig) URL() string {
	return fmt.Sprintf("ws://%s:%d/", g.Host, g.Port)
}

// BotConfig identifies the bot account and its persona.
type BotConfig struct {
	ID              int64  `json:"id"`   // the bot's own account number
	Name            string `json:"name"` // display name, used for mention detection
	PersonalityCore string `json:"personality_core"`
	PersonalitySide string `json:"personality_side"`
	Identity        string `json:"identity"`
}

// ReplyConfig tunes the reply-decision engine and the outbound throttle.
type ReplyConfig struct {
	Probability       float64 `json:"probability"`        // percent chance to consider a reply, 0..100
	MinMessages       int     `json:"min_messages"`       // volume gate after the first reply
	InterestThreshold float64 `json:"interest_threshold"` // scored judge pass bar, 0..10
	JudgeMode         string  `json:"judge_mode"`         // "binary" or "score"
	ContextTurns      int     `json:"context_turns"`      // turns shown to the judge
	WarmupSec         int     `json:"warmup_sec"`         // volume gate grace period per conversation
	MinIntervalSec    int     `json:"min_interval_sec"`   // minimum gap between replies per conversation
	OverflowPolicy    string  `json:"overflow_policy"`    // "drop" or "delay" when inside the interval
	MaxDelaySec       int     `json:"max_delay_sec"`      // cap for delayed emissions
	DedupEntries      int     `json:"dedup_entries"`      // recent-content cache size
	DedupWindowSec    int     `json:"dedup_window_sec"`
}

// ContextConfig bounds per-conversation history.
type ContextConfig struct {
	MaxTurns      int `json:"max_turns"`
	MaxTurnLength int `json:"max_turn_length"` // display width, longer turns get an ellipsis
}

// FilterConfig is the outbound word filter. A reply containing any black term
// is replaced by a random substitute, or suppressed when none are configured.
type FilterConfig struct {
	BlackTerms  []string `json:"black_terms"`
	Substitutes []string `json:"substitutes"`
}

// ModelConfig describes one OpenAI-compatible endpoint.
type ModelConfig struct {
	URL         string  `json:"url"`
	APIKey      string  `json:"api_key"`
	Name        string  `json:"name"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// ModelsConfig holds the three model roles the bot consumes.
type ModelsConfig struct {
	Judge          ModelConfig `json:"judge"`
	Reply          ModelConfig `json:"reply"`
	Caption        ModelConfig `json:"caption"`
	CaptionEnabled bool        `json:"caption_enabled"`
}

// PluginsConfig controls the built-in keyword actions. AdminIDs is the
// sender whitelist for privileged actions such as message revocation.
type PluginsConfig struct {
	BuiltinEnabled bool    `json:"builtin_enabled"`
	AdminIDs       []int64 `json:"admin_ids"`
}

// CacheConfig locates the persistent nickname cache.
type CacheConfig struct {
	NicknameFile string `json:"nickname_file"`
}

const secretMask = "***"

// MaskedCopy returns a copy of the config with API keys masked,
// for `qqclaw config show`.
func (c *Config) MaskedCopy() Config {
	cp := *c
	maskNonEmpty(&cp.Models.Judge.APIKey)
	maskNonEmpty(&cp.Models.Reply.APIKey)
	maskNonEmpty(&cp.Models.Caption.APIKey)
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}
