package domain

import "errors"

// Sentinel errors for the chat core. These provide consistent, checkable
// errors for common failure modes across components.
var (
	ErrNotConnected    = errors.New("push channel is not connected")
	ErrAlreadyClosed   = errors.New("session is closed")
	ErrRoomNotOpen     = errors.New("room is not open in this session")
	ErrQueueOverflow   = errors.New("offline send queue is full")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomForbidden   = errors.New("not a participant of this room")
	ErrPayloadRejected = errors.New("payload rejected by server")
	ErrMessageNotFound = errors.New("message not found")
)
