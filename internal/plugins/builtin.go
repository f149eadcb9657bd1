package plugins

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

var revokeSuccessLines = []string{
	"撤回成功啦~",
	"完成了喵！",
	"撤回完成了喵！",
}

// RegisterBuiltins installs the stock actions: current time, greeting,
// message revocation (whitelisted) and cross-group relay.
func RegisterBuiltins(r *Router, adminIDs []int64) error {
	builtins := []Action{
		{
			Keyword: "当前时间",
			Arity:   0,
			Handler: func(ctx context.Context, caps *Capabilities) error {
				now := time.Now().Format("2006-01-02 15:04:05")
				return caps.Send(caps.GroupID, "现在是 "+now)
			},
		},
		{
			Keyword: "你好",
			Arity:   1,
			Handler: func(ctx context.Context, caps *Capabilities) error {
				return caps.Send(caps.GroupID, "你好"+caps.Args[0]+"~")
			},
		},
		{
			Keyword:        "撤回",
			WantsMessageID: true,
			Whitelist:      adminIDs,
			Handler: func(ctx context.Context, caps *Capabilities) error {
				if err := caps.Revoke(caps.GroupID, caps.MessageID); err != nil {
					return caps.Send(caps.GroupID, "撤回失败: "+err.Error())
				}
				line := revokeSuccessLines[rand.Intn(len(revokeSuccessLines))]
				return caps.Send(caps.GroupID, line)
			},
		},
		{
			Keyword: "发消息",
			Arity:   3,
			Handler: func(ctx context.Context, caps *Capabilities) error {
				target, err := strconv.ParseInt(caps.Args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid target group %q", caps.Args[0])
				}
				text := strings.TrimSpace(caps.Args[1])
				if text == "" {
					return fmt.Errorf("empty relay message")
				}
				return caps.Send(target, text)
			},
		},
	}

	for _, a := range builtins {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
