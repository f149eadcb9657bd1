package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/qqclaw/internal/config"
	"github.com/nextlevelbuilder/qqclaw/internal/history"
)

// Persona is the character the generator speaks as.
type Persona struct {
	Name     string
	Core     string
	Side     string
	Identity string
}

// GeneratorClient produces the bot's reply text.
type GeneratorClient struct {
	client  *openai.Client
	model   config.ModelConfig
	persona Persona
}

func NewGenerator(mc config.ModelConfig, persona Persona) *GeneratorClient {
	return &GeneratorClient{
		client:  newClient(mc),
		model:   mc,
		persona: persona,
	}
}

func (g *GeneratorClient) Generate(ctx context.Context, turns []history.Turn, senderName, msgText string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: g.systemPrompt(),
	})
	for _, t := range turns {
		if t.Role == history.RoleAssistant {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: t.Text,
			})
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf("%s: %s", t.Author, t.Text),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("%s发了消息: %s", senderName, msgText),
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model.Name,
		Temperature: float32(g.model.Temperature),
		MaxTokens:   g.model.MaxTokens,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("llm: generation request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: generation returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("llm: empty generation")
	}
	return text, nil
}

func (g *GeneratorClient) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是%s，正在QQ群里和朋友们聊天。", g.persona.Name)
	if g.persona.Core != "" {
		fmt.Fprintf(&b, "你的性格: %s。", g.persona.Core)
	}
	if g.persona.Side != "" {
		fmt.Fprintf(&b, "%s。", g.persona.Side)
	}
	if g.persona.Identity != "" {
		fmt.Fprintf(&b, "你的身份: %s。", g.persona.Identity)
	}
	b.WriteString("用简短自然的口语回复，不要暴露你是程序。")
	return b.String()
}
