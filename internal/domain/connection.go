package domain

import "time"

// ConnectionState is the lifecycle of the push-channel connection. It is
// owned exclusively by the session controller; consumers only read it.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnDegraded     ConnectionState = "degraded"
	ConnReconnecting ConnectionState = "reconnecting"
)

// TypingSignal is an ephemeral per-user-per-room typing indicator. It is
// removed on an explicit stop, on expiry, or when a message from the user
// arrives.
type TypingSignal struct {
	RoomID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
