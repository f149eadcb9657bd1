package plugins

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/qqclaw/internal/message"
)

type sendRecord struct {
	groupID int64
	text    string
}

func testRouter() (*Router, *[]sendRecord, *[]string) {
	var sends []sendRecord
	var revokes []string
	r := NewRouter(
		func(groupID int64, text string) error {
			sends = append(sends, sendRecord{groupID, text})
			return nil
		},
		func(groupID int64, messageID string) error {
			revokes = append(revokes, messageID)
			return nil
		},
	)
	return r, &sends, &revokes
}

func groupMsg(text string) *message.Message {
	return &message.Message{ConversationID: 100, MessageID: 555, SenderID: 9, SenderName: "小明", Kind: message.KindText, Text: text}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r, _, _ := testRouter()
	noop := func(ctx context.Context, caps *Capabilities) error { return nil }

	if err := r.Register(Action{Keyword: "天气", Handler: noop}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(Action{Keyword: "天气", Handler: noop}); err == nil {
		t.Fatal("duplicate keyword should be rejected")
	}
	if err := r.Register(Action{Keyword: "", Handler: noop}); err == nil {
		t.Fatal("empty keyword should be rejected")
	}
	if err := r.Register(Action{Keyword: "无处理器"}); err == nil {
		t.Fatal("nil handler should be rejected")
	}
}

func TestDispatchUnmatched(t *testing.T) {
	r, _, _ := testRouter()
	r.Register(Action{Keyword: "天气", Handler: func(ctx context.Context, caps *Capabilities) error { return nil }})

	if r.Dispatch(context.Background(), groupMsg("help")) {
		t.Error("unregistered keyword must fall through")
	}
}

func TestDispatchFirstMatchWins(t *testing.T) {
	r, _, _ := testRouter()
	var fired []string
	handler := func(name string) Handler {
		return func(ctx context.Context, caps *Capabilities) error {
			fired = append(fired, name)
			return nil
		}
	}
	r.Register(Action{Keyword: "时间", Handler: handler("first")})
	r.Register(Action{Keyword: "当前时间", Handler: handler("second")})

	if !r.Dispatch(context.Background(), groupMsg("报一下当前时间")) {
		t.Fatal("should be handled")
	}
	if !reflect.DeepEqual(fired, []string{"first"}) {
		t.Errorf("fired = %v, want only the first registered match", fired)
	}
}

func TestDispatchArity(t *testing.T) {
	t.Run("arity zero", func(t *testing.T) {
		r, _, _ := testRouter()
		var got *Capabilities
		r.Register(Action{Keyword: "签到", Arity: 0, Handler: func(ctx context.Context, caps *Capabilities) error {
			got = caps
			return nil
		}})
		r.Dispatch(context.Background(), groupMsg("我要签到"))
		if got == nil || got.GroupID != 100 {
			t.Fatalf("caps = %+v", got)
		}
		if len(got.Args) != 0 {
			t.Errorf("args = %v, want none", got.Args)
		}
	})

	t.Run("arity one takes trailing text verbatim", func(t *testing.T) {
		r, _, _ := testRouter()
		var got []string
		r.Register(Action{Keyword: "你好", Arity: 1, Handler: func(ctx context.Context, caps *Capabilities) error {
			got = caps.Args
			return nil
		}})
		r.Dispatch(context.Background(), groupMsg("你好 呀 今天 怎么样"))
		if !reflect.DeepEqual(got, []string{"呀 今天 怎么样"}) {
			t.Errorf("args = %v", got)
		}
	})

	t.Run("arity three splits with remainder absorbed", func(t *testing.T) {
		r, _, _ := testRouter()
		var got []string
		r.Register(Action{Keyword: "发消息", Arity: 3, Handler: func(ctx context.Context, caps *Capabilities) error {
			got = caps.Args
			return nil
		}})
		r.Dispatch(context.Background(), groupMsg("发消息 12345 大家好 今天加班"))
		if !reflect.DeepEqual(got, []string{"12345", "大家好 今天加班"}) {
			t.Errorf("args = %v", got)
		}
	})

	t.Run("missing tokens come back empty", func(t *testing.T) {
		r, _, _ := testRouter()
		var got []string
		r.Register(Action{Keyword: "发消息", Arity: 3, Handler: func(ctx context.Context, caps *Capabilities) error {
			got = caps.Args
			return nil
		}})
		r.Dispatch(context.Background(), groupMsg("发消息"))
		if !reflect.DeepEqual(got, []string{"", ""}) {
			t.Errorf("args = %v", got)
		}
	})
}

func TestDispatchWhitelist(t *testing.T) {
	r, _, revokes := testRouter()
	r.Register(Action{
		Keyword:        "撤回",
		WantsMessageID: true,
		Whitelist:      []int64{777},
		Handler: func(ctx context.Context, caps *Capabilities) error {
			return caps.Revoke(caps.GroupID, caps.MessageID)
		},
	})

	if r.Dispatch(context.Background(), groupMsg("撤回")) {
		t.Error("non-whitelisted sender must be refused")
	}
	if len(*revokes) != 0 {
		t.Error("refused dispatch must not run the handler")
	}

	admin := groupMsg("撤回")
	admin.SenderID = 777
	if !r.Dispatch(context.Background(), admin) {
		t.Error("whitelisted sender should be handled")
	}
	if len(*revokes) != 1 {
		t.Fatalf("revokes = %v", *revokes)
	}
}

func TestMessageIDResolution(t *testing.T) {
	capture := func(dst *string) Action {
		return Action{
			Keyword:        "撤回",
			WantsMessageID: true,
			Handler: func(ctx context.Context, caps *Capabilities) error {
				*dst = caps.MessageID
				return nil
			},
		}
	}

	t.Run("reply target first", func(t *testing.T) {
		r, _, _ := testRouter()
		var got string
		r.Register(capture(&got))
		msg := groupMsg("撤回 999")
		msg.ReplyTargetID = "1234"
		r.Dispatch(context.Background(), msg)
		if got != "1234" {
			t.Errorf("message id = %q, want reply target", got)
		}
	})

	t.Run("trailing id second", func(t *testing.T) {
		r, _, _ := testRouter()
		var got string
		r.Register(capture(&got))
		r.Dispatch(context.Background(), groupMsg("撤回 999"))
		if got != "999" {
			t.Errorf("message id = %q, want trailing id", got)
		}
	})

	t.Run("own id last", func(t *testing.T) {
		r, _, _ := testRouter()
		var got string
		r.Register(capture(&got))
		r.Dispatch(context.Background(), groupMsg("撤回"))
		if got != "555" {
			t.Errorf("message id = %q, want the message's own id", got)
		}
	})
}

func TestHandlerErrorFallsThrough(t *testing.T) {
	r, sends, _ := testRouter()
	r.Register(Action{Keyword: "坏掉", Handler: func(ctx context.Context, caps *Capabilities) error {
		return fmt.Errorf("boom")
	}})
	r.Register(Action{Keyword: "掉的", Handler: func(ctx context.Context, caps *Capabilities) error {
		return caps.Send(caps.GroupID, "second handler ran")
	}})

	if !r.Dispatch(context.Background(), groupMsg("坏掉的插件")) {
		t.Fatal("later matching action should still handle the message")
	}
	if len(*sends) != 1 {
		t.Errorf("sends = %v", *sends)
	}
}

func TestBuiltins(t *testing.T) {
	r, sends, revokes := testRouter()
	if err := RegisterBuiltins(r, []int64{777}); err != nil {
		t.Fatal(err)
	}

	t.Run("relay to another group", func(t *testing.T) {
		*sends = nil
		if !r.Dispatch(context.Background(), groupMsg("发消息 200 晚上开黑吗")) {
			t.Fatal("relay not handled")
		}
		if len(*sends) != 1 || (*sends)[0].groupID != 200 || (*sends)[0].text != "晚上开黑吗" {
			t.Errorf("sends = %v", *sends)
		}
	})

	t.Run("revoke by admin", func(t *testing.T) {
		*revokes = nil
		msg := groupMsg("撤回")
		msg.SenderID = 777
		msg.ReplyTargetID = "31337"
		if !r.Dispatch(context.Background(), msg) {
			t.Fatal("revoke not handled")
		}
		if !reflect.DeepEqual(*revokes, []string{"31337"}) {
			t.Errorf("revokes = %v", *revokes)
		}
	})
}
