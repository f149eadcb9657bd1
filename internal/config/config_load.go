package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:              "127.0.0.1",
			Port:              3001,
			RequestTimeoutSec: 5,
		},
		Bot: BotConfig{
			Name: "qqclaw",
		},
		Reply: ReplyConfig{
			Probability:       4,
			MinMessages:       3,
			InterestThreshold: 5,
			JudgeMode:         "binary",
			ContextTurns:      5,
			WarmupSec:         60,
			MinIntervalSec:    6,
			OverflowPolicy:    "drop",
			MaxDelaySec:       3,
			DedupEntries:      50,
			DedupWindowSec:    300,
		},
		Context: ContextConfig{
			MaxTurns:      10,
			MaxTurnLength: 300,
		},
		Models: ModelsConfig{
			Judge: ModelConfig{Temperature: 0.3, MaxTokens: 10},
			Reply: ModelConfig{Temperature: 0.7, MaxTokens: 1024},
		},
		Cache: CacheConfig{
			NicknameFile: "data/group_members.txt",
		},
		Plugins: PluginsConfig{
			BuiltinEnabled: true,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults so env-only setups work.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets usually arrive this way.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("QQCLAW_JUDGE_API_KEY", &c.Models.Judge.APIKey)
	envStr("QQCLAW_REPLY_API_KEY", &c.Models.Reply.APIKey)
	envStr("QQCLAW_CAPTION_API_KEY", &c.Models.Caption.APIKey)

	envStr("QQCLAW_GATEWAY_HOST", &c.Gateway.Host)
	if v := os.Getenv("QQCLAW_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	envStr("QQCLAW_BOT_NAME", &c.Bot.Name)
	if v := os.Getenv("QQCLAW_BOT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			c.Bot.ID = id
		}
	}

	envStr("QQCLAW_NICKNAME_FILE", &c.Cache.NicknameFile)
}
