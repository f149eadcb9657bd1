package onebot

import (
	"context"
	"encoding/json"
	"fmt"
)

// UserInfo is the payload of get_stranger_info.
type UserInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// MemberInfo is the payload of get_group_member_info.
type MemberInfo struct {
	GroupID  int64  `json:"group_id"`
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"` // group card name, preferred over nickname
}

// SendGroupMsg enqueues a group message send.
func (c *Client) SendGroupMsg(groupID int64, message string) error {
	return c.Send("send_group_msg", map[string]any{
		"group_id": groupID,
		"message":  message,
	})
}

// DeleteMsg enqueues a message revocation.
func (c *Client) DeleteMsg(groupID int64, messageID string) error {
	return c.Send("delete_msg", map[string]any{
		"group_id":   groupID,
		"message_id": messageID,
	})
}

// GetMsg fetches a message by id, for quote resolution. The returned
// event carries the quoted message's sender and segments.
func (c *Client) GetMsg(ctx context.Context, messageID string) (*Event, error) {
	resp, err := c.Request(ctx, "get_msg", map[string]any{"message_id": messageID})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("onebot: get_msg: %s (retcode %d)", resp.Msg, resp.Retcode)
	}
	var ev Event
	if err := json.Unmarshal(resp.Data, &ev); err != nil {
		return nil, fmt.Errorf("onebot: get_msg: decode: %w", err)
	}
	return &ev, nil
}

// GetStrangerInfo fetches a user's profile nickname.
func (c *Client) GetStrangerInfo(ctx context.Context, userID int64) (*UserInfo, error) {
	resp, err := c.Request(ctx, "get_stranger_info", map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("onebot: get_stranger_info: %s (retcode %d)", resp.Msg, resp.Retcode)
	}
	var info UserInfo
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return nil, fmt.Errorf("onebot: get_stranger_info: decode: %w", err)
	}
	return &info, nil
}

// GetGroupMemberInfo fetches a member's group card and nickname.
func (c *Client) GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (*MemberInfo, error) {
	resp, err := c.Request(ctx, "get_group_member_info", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("onebot: get_group_member_info: %s (retcode %d)", resp.Msg, resp.Retcode)
	}
	var info MemberInfo
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return nil, fmt.Errorf("onebot: get_group_member_info: decode: %w", err)
	}
	return &info, nil
}
