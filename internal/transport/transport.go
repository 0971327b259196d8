// Package transport owns the persistent duplex connection used for live chat
// event delivery. It knows nothing about rooms or reconciliation: it moves
// named events in both directions and tells its owner when the connection
// drops. Retry policy deliberately lives with the session controller so that
// room-rejoin and catch-up stay centralized.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Credential carries what the adapter needs to establish the duplex
// connection. The bearer token comes from the auth collaborator.
type Credential struct {
	// URL is the websocket endpoint (e.g., "wss://api.tradepost.dev/ws").
	URL string `json:"url"`
	// Token is the bearer credential used for the handshake.
	Token string `json:"token"`
	// UserID identifies the authenticated user.
	UserID string `json:"user_id"`
}

// Handler processes one inbound event. Handlers for a connection run on the
// read loop goroutine, so inbound events are observed in network-arrival
// order.
type Handler func(event string, data json.RawMessage)

// Unsubscribe detaches a previously registered handler. Safe to call more
// than once.
type Unsubscribe func()

// Adapter is the contract for the push-channel transport. Implementations
// maintain exactly one underlying connection per credential; repeated Connect
// calls while connected are no-ops. On involuntary disconnect the adapter
// dispatches EventDisconnected but does not retry.
type Adapter interface {
	Connect(ctx context.Context, cred Credential) error
	Disconnect() error
	// Send emits a named event with a JSON payload. It fails with a
	// *SendError when the connection is down.
	Send(ctx context.Context, event string, payload any) error
	// Subscribe registers a handler for a named event and returns an
	// unsubscribe token.
	Subscribe(event string, h Handler) Unsubscribe
	// Connected reports whether the duplex connection is currently up.
	Connected() bool
}

// ConnectErrorKind classifies connection handshake failures.
type ConnectErrorKind string

const (
	// ConnectRejected means the server refused the credential.
	ConnectRejected ConnectErrorKind = "rejected"
	// ConnectUnreachable means the endpoint could not be reached.
	ConnectUnreachable ConnectErrorKind = "unreachable"
)

// ConnectError reports a failed handshake.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError reports a failed event emission.
type SendError struct {
	Event string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %q failed: %v", e.Event, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Frame is the wire envelope for every event on the duplex connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
