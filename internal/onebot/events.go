// Package onebot implements the client side of the OneBot v11 websocket
// protocol as spoken by NapCat: a single duplex socket carrying pushed
// events and echo-correlated action responses.
//
// Only the action/event subset the bot consumes is modelled.
package onebot

import "encoding/json"

// Event is a pushed gateway event. Only post_type="message" events carry
// the message fields; everything else is identified by PostType alone.
type Event struct {
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	MessageFormat string          `json:"message_format"`
	MessageID     int64           `json:"message_id"`
	GroupID       int64           `json:"group_id"`
	UserID        int64           `json:"user_id"`
	RawMessage    string          `json:"raw_message"`
	Message       json.RawMessage `json:"message"` // segment array, or a raw CQ string
	Sender        Sender          `json:"sender"`
}

// Sender identifies the author of a message event.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"` // group card name, preferred over nickname
}

// Name returns the best display name for the sender.
func (s Sender) Name() string {
	if s.Card != "" {
		return s.Card
	}
	if s.Nickname != "" {
		return s.Nickname
	}
	return ""
}

// Segment is one element of a structured message array.
type Segment struct {
	Type string      `json:"type"`
	Data SegmentData `json:"data"`
}

// SegmentData is the union of per-type segment payloads; unused fields
// are simply absent on the wire.
type SegmentData struct {
	Text string `json:"text,omitempty"` // type=text
	QQ   string `json:"qq,omitempty"`   // type=at
	File string `json:"file,omitempty"` // media types
	URL  string `json:"url,omitempty"`  // media types
	ID   string `json:"id,omitempty"`   // type=reply
}

// Segments decodes the event's message as a segment array.
// Returns nil, false when the payload is a raw string instead.
func (e *Event) Segments() ([]Segment, bool) {
	if e.MessageFormat != "array" || len(e.Message) == 0 {
		return nil, false
	}
	var segs []Segment
	if err := json.Unmarshal(e.Message, &segs); err != nil {
		return nil, false
	}
	return segs, true
}

// Response is the gateway's answer to a correlated action request.
type Response struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Msg     string          `json:"msg,omitempty"`
	Echo    string          `json:"echo"`
	Data    json.RawMessage `json:"data"`
}

// OK reports whether the action succeeded.
func (r Response) OK() bool { return r.Status == "ok" }

// request is the outbound action frame.
type request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo,omitempty"`
}

// frame is used to sniff the direction of an inbound payload: responses
// carry an echo, events carry a post_type.
type frame struct {
	PostType string `json:"post_type"`
	Echo     string `json:"echo"`
}
