// Package protocol defines the messages exchanged between the live page
// client and the server.
package protocol

import (
	"strconv"
	"time"
)

// MessageType identifies the type of protocol message.
type MessageType uint8

const (
	// MsgJoin is sent when the client joins its page topic.
	MsgJoin MessageType = iota
	// MsgLeave is sent when the client leaves.
	MsgLeave
	// MsgEvent carries a user interaction.
	MsgEvent
	// MsgReply answers a client message.
	MsgReply
	// MsgPush is a server-initiated event such as a diff.
	MsgPush
	// MsgError reports a failure.
	MsgError
	// MsgHeartbeat keeps the connection alive.
	MsgHeartbeat
)

// Reserved event names.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventHeartbeat = "heartbeat"
	EventDiff      = "diff"
)

// HeartbeatTopic is the topic of heartbeat messages.
const HeartbeatTopic = "phoenix"

// String returns a string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgJoin:
		return "join"
	case MsgLeave:
		return "leave"
	case MsgEvent:
		return "event"
	case MsgReply:
		return "reply"
	case MsgPush:
		return "push"
	case MsgError:
		return "error"
	case MsgHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Message is one protocol frame.
type Message struct {
	Type MessageType `json:"t" msgpack:"t"`

	// Ref correlates a reply with its request.
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Topic is "lv:" followed by the socket id.
	Topic string `json:"topic" msgpack:"topic"`

	Event   string         `json:"event,omitempty" msgpack:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`

	Timestamp int64  `json:"ts,omitempty" msgpack:"ts,omitempty"`
	JoinRef   string `json:"join_ref,omitempty" msgpack:"join_ref,omitempty"`
}

// NewMessage creates a new message with the given parameters.
func NewMessage(msgType MessageType, topic, event string) *Message {
	return &Message{
		Type:      msgType,
		Topic:     topic,
		Event:     event,
		Payload:   make(map[string]any),
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithRef adds a reference ID to the message.
func (m *Message) WithRef(ref string) *Message {
	m.Ref = ref
	return m
}

// WithPayload sets the message payload.
func (m *Message) WithPayload(payload map[string]any) *Message {
	m.Payload = payload
	return m
}

// WithJoinRef sets the join reference.
func (m *Message) WithJoinRef(joinRef string) *Message {
	m.JoinRef = joinRef
	return m
}

// PayloadString returns a string payload value. Numbers are formatted.
func (m *Message) PayloadString(key string) string {
	return PayloadString(m.Payload, key)
}

// PayloadInt returns an int payload value and whether it was present and
// numeric. Strings holding decimal integers are accepted, since element
// attributes always arrive as strings.
func (m *Message) PayloadInt(key string) (int, bool) {
	return PayloadInt(m.Payload, key)
}

// PayloadString reads key from payload as a string.
func PayloadString(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// PayloadInt reads key from payload as an int.
func PayloadInt(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// EventMessage creates an event message.
func EventMessage(topic, event string, payload map[string]any) *Message {
	return NewMessage(MsgEvent, topic, event).WithPayload(payload)
}

// PushMessage creates a server push.
func PushMessage(topic, event string, payload map[string]any) *Message {
	return NewMessage(MsgPush, topic, event).WithPayload(payload)
}

// ReplyMessage creates a reply message.
func ReplyMessage(ref, topic, status string, response map[string]any) *Message {
	return NewMessage(MsgReply, topic, EventReply).
		WithRef(ref).
		WithPayload(map[string]any{
			"status":   status,
			"response": response,
		})
}

// OkReply creates a successful reply message.
func OkReply(ref, topic string, response map[string]any) *Message {
	return ReplyMessage(ref, topic, "ok", response)
}

// ErrorReply creates an error reply message.
func ErrorReply(ref, topic, reason string) *Message {
	return ReplyMessage(ref, topic, "error", map[string]any{"reason": reason})
}

// HeartbeatReply answers a heartbeat.
func HeartbeatReply(ref string) *Message {
	return OkReply(ref, HeartbeatTopic, map[string]any{})
}
