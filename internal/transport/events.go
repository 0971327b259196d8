package transport

import "github.com/tradepost/chatkit/internal/topics"

// Named events carried over the duplex connection. The __-prefixed lifecycle
// events are synthesized by the adapter itself and never appear on the wire.
const (
	// Outbound
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventMarkRead    = "mark_read"

	// Inbound
	EventNewMessage  = "new_message"
	EventUserTyping  = "user_typing"
	EventMessageRead = "message_read"
	EventUserJoined  = "user_joined"
	EventUserLeft    = "user_left"
	EventJoinAck     = "join_ack"

	// Adapter lifecycle, dispatched through the same subscription interface.
	EventConnected    = "__connected"
	EventDisconnected = "__disconnected"
)

// RoomRef is the payload for events that only name a room.
type RoomRef struct {
	ChatID string `json:"chat_id"`
}

// UserTyping is the payload of the user_typing event.
type UserTyping struct {
	UserID   string `json:"user_id"`
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
}

// MessageRead is the payload of the message_read event.
type MessageRead struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
}

// UserPresence is the payload of the user_joined and user_left events.
type UserPresence struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
}

// Disconnected is the payload of the synthetic __disconnected event.
type Disconnected struct {
	Reason string `json:"reason"`
}

func init() {
	wire := []topics.Config{
		{Name: EventJoinChat, Direction: "outbound", Description: "Join a room's live event stream", Example: `{"chat_id":"r1"}`},
		{Name: EventLeaveChat, Direction: "outbound", Description: "Leave a room's live event stream", Example: `{"chat_id":"r1"}`},
		{Name: EventTypingStart, Direction: "outbound", Description: "Local user started typing", Example: `{"chat_id":"r1"}`},
		{Name: EventTypingStop, Direction: "outbound", Description: "Local user stopped typing", Example: `{"chat_id":"r1"}`},
		{Name: EventMarkRead, Direction: "outbound", Description: "Mark a message as read", Example: `{"message_id":"m1","user_id":"u1","chat_id":"r1"}`},
		{Name: EventNewMessage, Direction: "inbound", Description: "A message was posted to an open room", Example: `{"id":"m1","chat_id":"r1","author_id":"u2","message":"hi"}`},
		{Name: EventUserTyping, Direction: "inbound", Description: "A participant started or stopped typing", Example: `{"user_id":"u2","chat_id":"r1","is_typing":true}`},
		{Name: EventMessageRead, Direction: "inbound", Description: "A participant read a message", Example: `{"message_id":"m1","user_id":"u2","chat_id":"r1"}`},
		{Name: EventUserJoined, Direction: "inbound", Description: "A participant joined the room", Example: `{"user_id":"u2","chat_id":"r1"}`},
		{Name: EventUserLeft, Direction: "inbound", Description: "A participant left the room", Example: `{"user_id":"u2","chat_id":"r1"}`},
		{Name: EventJoinAck, Direction: "inbound", Description: "Server acknowledged a join_chat", Example: `{"chat_id":"r1"}`},
		{Name: EventConnected, Direction: "inbound", Description: "Duplex connection established (synthetic)", Example: `{}`},
		{Name: EventDisconnected, Direction: "inbound", Description: "Duplex connection lost (synthetic)", Example: `{"reason":"read error"}`},
	}
	for _, cfg := range wire {
		cfg.Scope = topics.ScopeWire
		topics.Define(cfg)
	}
}
