package session

import (
	"github.com/tradepost/chatkit/internal/domain"
	"github.com/tradepost/chatkit/internal/pubsub"
)

// Payloads published on the consumer bus. Presentation consumers subscribe to
// these and re-render reactively; they never mutate controller state.

// MessageUpdate carries one message that was inserted or merged.
type MessageUpdate struct {
	RoomID  string         `json:"chat_id"`
	Message domain.Message `json:"message"`
}

// RoomSeeded signals that a room's history finished loading into the store.
type RoomSeeded struct {
	RoomID string `json:"chat_id"`
	Count  int    `json:"count"`
}

// TypingUpdate carries the full active typing set for a room.
type TypingUpdate struct {
	RoomID string   `json:"chat_id"`
	Users  []string `json:"users"`
}

// StateUpdate carries the session and connection state after a transition.
type StateUpdate struct {
	State      State                  `json:"state"`
	Connection domain.ConnectionState `json:"connection"`
}

// RoomClosed signals that a room left the session, voluntarily or because the
// open flow failed.
type RoomClosed struct {
	RoomID string `json:"chat_id"`
	Reason string `json:"reason"`
}

// UnreadUpdate carries a room's unread counter after it changed.
type UnreadUpdate struct {
	RoomID string `json:"chat_id"`
	Unread int    `json:"unread"`
}

var (
	EventMessageUpserted = pubsub.NewEvent[MessageUpdate]("chat.message.upserted", "A message was inserted into or merged in the store")
	EventRoomSeeded      = pubsub.NewEvent[RoomSeeded]("chat.room.seeded", "A room's message history finished loading")
	EventTypingChanged   = pubsub.NewEvent[TypingUpdate]("chat.typing.changed", "A room's set of typing users changed")
	EventStateChanged    = pubsub.NewEvent[StateUpdate]("chat.state.changed", "The session or connection state changed")
	EventRoomClosed      = pubsub.NewEvent[RoomClosed]("chat.room.closed", "A room was closed and its store entries dropped")
	EventUnreadChanged   = pubsub.NewEvent[UnreadUpdate]("chat.unread.changed", "A room's unread counter changed")
)
