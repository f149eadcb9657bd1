package mention

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/qqclaw/internal/onebot"
)

type fakeLookup struct {
	members   map[int64]*onebot.MemberInfo
	strangers map[int64]*onebot.UserInfo
	calls     int
}

func (f *fakeLookup) GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (*onebot.MemberInfo, error) {
	f.calls++
	m, ok := f.members[userID]
	if !ok {
		return nil, fmt.Errorf("not a member")
	}
	return m, nil
}

func (f *fakeLookup) GetStrangerInfo(ctx context.Context, userID int64) (*onebot.UserInfo, error) {
	f.calls++
	s, ok := f.strangers[userID]
	if !ok {
		return nil, fmt.Errorf("unknown user")
	}
	return s, nil
}

func newTestResolver(t *testing.T, lookup Lookup) *Resolver {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "members.txt"))
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(10001, "麦麦", cache, lookup)
}

func TestResolve(t *testing.T) {
	lookup := &fakeLookup{
		members: map[int64]*onebot.MemberInfo{
			20002: {UserID: 20002, Nickname: "昵称", Card: "群名片"},
			30003: {UserID: 30003, Nickname: "只有昵称"},
		},
		strangers: map[int64]*onebot.UserInfo{
			40004: {UserID: 40004, Nickname: "路人"},
		},
	}
	r := newTestResolver(t, lookup)
	ctx := context.Background()

	t.Run("bot id resolves to bot name", func(t *testing.T) {
		if got := r.Resolve(ctx, "10001", 5); got != "麦麦" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("group card preferred", func(t *testing.T) {
		if got := r.Resolve(ctx, "20002", 5); got != "群名片" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("nickname when no card", func(t *testing.T) {
		if got := r.Resolve(ctx, "30003", 5); got != "只有昵称" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("stranger fallback", func(t *testing.T) {
		if got := r.Resolve(ctx, "40004", 5); got != "路人" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("unresolvable falls back to id", func(t *testing.T) {
		if got := r.Resolve(ctx, "50005", 5); got != "50005" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("second resolve hits the cache", func(t *testing.T) {
		before := lookup.calls
		if got := r.Resolve(ctx, "20002", 5); got != "群名片" {
			t.Errorf("got %q", got)
		}
		if lookup.calls != before {
			t.Error("cached id triggered a lookup")
		}
	})
}

func TestReplaceIsIdempotent(t *testing.T) {
	lookup := &fakeLookup{
		members: map[int64]*onebot.MemberInfo{
			20002: {UserID: 20002, Card: "老王"},
		},
	}
	r := newTestResolver(t, lookup)
	ctx := context.Background()

	text := "[CQ:at,qq=20002] 和 @20002 都是同一个人"
	once := r.Replace(ctx, text, 5)
	if once != "@老王 和 @老王 都是同一个人" {
		t.Fatalf("once = %q", once)
	}
	twice := r.Replace(ctx, once, 5)
	if twice != once {
		t.Errorf("replace not idempotent: %q != %q", twice, once)
	}
}

func TestBotMentioned(t *testing.T) {
	r := newTestResolver(t, &fakeLookup{})
	if !r.BotMentioned("@麦麦 在吗") {
		t.Error("mention not detected")
	}
	if r.BotMentioned("麦麦在吗") {
		t.Error("bare name is not a mention")
	}
}
