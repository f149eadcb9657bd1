// Package llm wraps the three OpenAI-compatible services the bot
// consumes: the reply-worthiness judge, the reply generator, and the
// image captioner. Each speaks to its own configured endpoint.
package llm

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/qqclaw/internal/config"
)

func newClient(mc config.ModelConfig) *openai.Client {
	cfg := openai.DefaultConfig(mc.APIKey)
	if mc.URL != "" {
		cfg.BaseURL = mc.URL
	}
	return openai.NewClientWithConfig(cfg)
}
