package protocol

import "encoding/json"

// heartbeatEcho is the reserved echo value used by the keep-alive probe.
// Response frames carrying it are consumed silently and never surfaced.
const heartbeatEcho = "heartbeat"

type baseFrame struct {
	PostType string          `json:"post_type"`
	Echo     json.RawMessage `json:"echo"`
}

type actionEnvelope struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Echo   string `json:"echo,omitempty"`
}

type messageEvent struct {
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	MessageFormat string          `json:"message_format"`
	Time          int64           `json:"time"`
	GroupID       int64           `json:"group_id"`
	UserID        int64           `json:"user_id"`
	RawMessage    string          `json:"raw_message"`
	Message       json.RawMessage `json:"message"`
	Sender        senderInfo      `json:"sender"`
}

type senderInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
}

type noticeEvent struct {
	NoticeType string `json:"notice_type"`
	SubType    string `json:"sub_type"`
	Time       int64  `json:"time"`
	GroupID    int64  `json:"group_id"`
	UserID     int64  `json:"user_id"`
	OperatorID int64  `json:"operator_id"`
}

type requestEvent struct {
	RequestType string `json:"request_type"`
	SubType     string `json:"sub_type"`
	Time        int64  `json:"time"`
	GroupID     int64  `json:"group_id"`
	UserID      int64  `json:"user_id"`
	Flag        string `json:"flag"`
	Comment     string `json:"comment"`
}

type metaEvent struct {
	MetaEventType string `json:"meta_event_type"`
	SubType       string `json:"sub_type"`
	Time          int64  `json:"time"`
}

// Message is a classified inbound chat message.
type Message struct {
	Type    string // "private" or "group"
	Time    int64
	GroupID int64
	Sender  Sender
	Text    string // flattened plain text
}

// Sender identifies the account that produced a message.
type Sender struct {
	UserID   int64
	Nickname string
}

// Notice is a platform-side notice event (member joined, left, ...).
type Notice struct {
	Type       string
	SubType    string
	Time       int64
	GroupID    int64
	UserID     int64
	OperatorID int64
}

// Request is a friend/group request event.
type Request struct {
	Type    string
	SubType string
	Time    int64
	GroupID int64
	UserID  int64
	Flag    string
	Comment string
}

// Meta is a protocol meta event (lifecycle, heartbeat from the remote side).
type Meta struct {
	Type    string
	SubType string
	Time    int64
}

// Handler receives classified inbound events. All callbacks run on the
// client's single frame-processing goroutine, in wire arrival order.
type Handler interface {
	OnMessage(msg *Message)
	OnNotice(n *Notice)
	OnRequest(r *Request)
	OnMeta(m *Meta)
	OnDisconnect(err error)
}
