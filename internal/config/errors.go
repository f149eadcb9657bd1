package config

import (
	"fmt"
	"strings"
)

// Error describes a single invalid configuration value with enough
// context to fix it: which file, section, and key, what was expected,
// what was found, and a remediation hint.
type Error struct {
	File     string
	Section  string
	Key      string
	Expected string
	Actual   string
	Hint     string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("config error: file=")
	b.WriteString(e.File)
	if e.Section != "" {
		fmt.Fprintf(&b, " section=%s", e.Section)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%s", e.Key)
	}
	if e.Expected != "" {
		fmt.Fprintf(&b, " expected=%s", e.Expected)
	}
	if e.Actual != "" {
		fmt.Fprintf(&b, " actual=%s", e.Actual)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (fix: %s)", e.Hint)
	}
	return b.String()
}

// Bundle aggregates every validation error so a broken config reports
// all its problems in one run instead of one per restart.
type Bundle struct {
	Errors []*Error
}

func (b *Bundle) Error() string {
	lines := make([]string, len(b.Errors))
	for i, e := range b.Errors {
		lines[i] = e.Error()
	}
	return strings.Join(lines, "\n")
}

// Validate checks the config for startup-fatal problems. It returns nil
// when the config is usable; otherwise a *Bundle listing every issue.
// path is only used for error reporting.
func (c *Config) Validate(path string) error {
	var errs []*Error
	add := func(section, key, expected, actual, hint string) {
		errs = append(errs, &Error{
			File: path, Section: section, Key: key,
			Expected: expected, Actual: actual, Hint: hint,
		})
	}

	if c.Gateway.Host == "" {
		add("gateway", "host", "non-empty host", `""`, "set the NapCat/OneBot server host")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		add("gateway", "port", "1..65535", fmt.Sprint(c.Gateway.Port), "set the NapCat/OneBot websocket port")
	}
	if c.Bot.ID <= 0 {
		add("bot", "id", "positive account number", fmt.Sprint(c.Bot.ID), "set the bot's own account id or QQCLAW_BOT_ID")
	}
	if c.Bot.Name == "" {
		add("bot", "name", "non-empty display name", `""`, "mention detection needs the bot's name")
	}
	if c.Reply.Probability < 0 || c.Reply.Probability > 100 {
		add("reply", "probability", "percent in 0..100", fmt.Sprint(c.Reply.Probability), "use a percentage, e.g. 4 for 4%")
	}
	if c.Reply.InterestThreshold < 0 || c.Reply.InterestThreshold > 10 {
		add("reply", "interest_threshold", "score in 0..10", fmt.Sprint(c.Reply.InterestThreshold), "the judge scores messages 0-10")
	}
	switch c.Reply.JudgeMode {
	case "binary", "score":
	default:
		add("reply", "judge_mode", `"binary" or "score"`, fmt.Sprintf("%q", c.Reply.JudgeMode), "pick one judge contract")
	}
	switch c.Reply.OverflowPolicy {
	case "drop", "delay":
	default:
		add("reply", "overflow_policy", `"drop" or "delay"`, fmt.Sprintf("%q", c.Reply.OverflowPolicy), "decide what happens inside the cooldown window")
	}
	if c.Reply.MinIntervalSec < 0 {
		add("reply", "min_interval_sec", ">= 0", fmt.Sprint(c.Reply.MinIntervalSec), "cooldown cannot be negative")
	}
	if c.Context.MaxTurns <= 0 {
		add("context", "max_turns", "positive capacity", fmt.Sprint(c.Context.MaxTurns), "the per-conversation history must be bounded")
	}
	if c.Models.Judge.URL == "" || c.Models.Judge.Name == "" {
		add("models", "judge", "url and name", describeModel(c.Models.Judge), "configure the judge model endpoint")
	}
	if c.Models.Reply.URL == "" || c.Models.Reply.Name == "" {
		add("models", "reply", "url and name", describeModel(c.Models.Reply), "configure the reply model endpoint")
	}
	if c.Models.CaptionEnabled && (c.Models.Caption.URL == "" || c.Models.Caption.Name == "") {
		add("models", "caption", "url and name when caption_enabled", describeModel(c.Models.Caption), "configure the caption model or disable caption_enabled")
	}
	if c.Cache.NicknameFile == "" {
		add("cache", "nickname_file", "non-empty path", `""`, "the nickname cache persists to this file")
	}

	if len(errs) == 0 {
		return nil
	}
	return &Bundle{Errors: errs}
}

func describeModel(m ModelConfig) string {
	return fmt.Sprintf("url=%q name=%q", m.URL, m.Name)
}
