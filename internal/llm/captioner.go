package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/qqclaw/internal/config"
)

// captionCacheSize bounds the per-URL caption cache (FIFO eviction).
const captionCacheSize = 64

// Captioner describes images through a vision model. Results are cached
// by URL so a forwarded image is only described once.
type Captioner struct {
	client *openai.Client
	model  config.ModelConfig

	mu    sync.Mutex
	cache map[string]string
	order []string
}

func NewCaptioner(mc config.ModelConfig) *Captioner {
	return &Captioner{
		client: newClient(mc),
		model:  mc,
		cache:  make(map[string]string),
	}
}

// Caption returns a short description of the image at url.
func (c *Captioner) Caption(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("llm: caption: empty image url")
	}

	c.mu.Lock()
	cached, ok := c.cache[url]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model.Name,
		MaxTokens: c.model.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "用一句话描述这张图片的内容。",
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: url},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: caption request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: caption returned no choices")
	}

	caption := strings.TrimSpace(resp.Choices[0].Message.Content)
	if caption == "" {
		return "", fmt.Errorf("llm: empty caption")
	}

	c.mu.Lock()
	c.store(url, caption)
	c.mu.Unlock()
	return caption, nil
}

func (c *Captioner) store(url, caption string) {
	if _, exists := c.cache[url]; exists {
		c.cache[url] = caption
		return
	}
	c.cache[url] = caption
	c.order = append(c.order, url)
	if len(c.order) > captionCacheSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}
}
