package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nextlevelbuilder/qqclaw/internal/config"
	"github.com/nextlevelbuilder/qqclaw/internal/history"
	"github.com/nextlevelbuilder/qqclaw/internal/reply"
)

// Judge modes.
const (
	ModeBinary = "binary"
	ModeScore  = "score"
)

var scoreRun = regexp.MustCompile(`\d+`)

// JudgeClient asks a small model whether a group message deserves a
// reply. Depending on mode the model answers 是/否 or an integer 0-10.
type JudgeClient struct {
	client  *openai.Client
	model   config.ModelConfig
	mode    string
	botName string
}

func NewJudge(mc config.ModelConfig, mode, botName string) *JudgeClient {
	return &JudgeClient{
		client:  newClient(mc),
		model:   mc,
		mode:    mode,
		botName: botName,
	}
}

func (j *JudgeClient) Judge(ctx context.Context, msgText string, turns []history.Turn) (reply.Verdict, error) {
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model.Name,
		Temperature: float32(j.model.Temperature),
		MaxTokens:   j.model.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: j.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: j.userPrompt(msgText, turns)},
		},
	})
	if err != nil {
		return reply.Verdict{}, fmt.Errorf("llm: judge request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return reply.Verdict{}, fmt.Errorf("llm: judge returned no choices")
	}
	return j.parse(resp.Choices[0].Message.Content)
}

func (j *JudgeClient) systemPrompt() string {
	if j.mode == ModeScore {
		return fmt.Sprintf(
			"你是群聊机器人%s的兴趣评估器。根据聊天记录和最新消息，评估%s对这条消息的回复兴趣。只输出一个0到10的整数，不要输出其他内容。",
			j.botName, j.botName)
	}
	return fmt.Sprintf(
		"你是群聊机器人%s的回复判断器。根据聊天记录和最新消息，判断%s是否应该回复这条消息。只回答“是”或“否”，不要输出其他内容。",
		j.botName, j.botName)
}

func (j *JudgeClient) userPrompt(msgText string, turns []history.Turn) string {
	var b strings.Builder
	if len(turns) > 0 {
		b.WriteString("最近的聊天记录:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Author, t.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "最新消息: %s", msgText)
	return b.String()
}

func (j *JudgeClient) parse(answer string) (reply.Verdict, error) {
	answer = strings.TrimSpace(answer)

	if j.mode == ModeScore {
		run := scoreRun.FindString(answer)
		if run == "" {
			return reply.Verdict{}, fmt.Errorf("llm: judge answer %q has no score", answer)
		}
		score, err := strconv.ParseFloat(run, 64)
		if err != nil {
			return reply.Verdict{}, fmt.Errorf("llm: judge score %q: %w", run, err)
		}
		if score > 10 {
			score = 10
		}
		return reply.Verdict{Score: score, Scored: true}, nil
	}

	accept := strings.HasPrefix(answer, "是") ||
		strings.HasPrefix(strings.ToLower(answer), "yes")
	return reply.Verdict{Accept: accept}, nil
}
