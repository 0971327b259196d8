package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tradepost/chatkit/internal/domain"
)

const (
	// pingPeriod is the heartbeat interval. A missed ping is treated as an
	// involuntary disconnect so the session controller can degrade.
	pingPeriod = 54 * time.Second
	// writeTimeout bounds a single frame write or ping.
	writeTimeout = 10 * time.Second
	// sendBuffer is the capacity of the outbound frame channel.
	sendBuffer = 256
)

// WSAdapter implements Adapter over a coder/websocket client connection.
type WSAdapter struct {
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	connected bool

	subMu   sync.RWMutex
	subs    map[string]map[int]Handler
	nextTok int
}

// NewWSAdapter creates a disconnected adapter.
func NewWSAdapter() *WSAdapter {
	return &WSAdapter{
		logger: slog.Default().With("service", "transport"),
		subs:   make(map[string]map[int]Handler),
	}
}

// Connect dials the push channel with the bearer credential. Calling Connect
// while already connected is a no-op.
func (a *WSAdapter) Connect(ctx context.Context, cred Credential) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token)

	conn, resp, err := websocket.Dial(ctx, cred.URL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		kind := ConnectUnreachable
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			kind = ConnectRejected
		}
		return &ConnectError{Kind: kind, Err: err}
	}

	a.mu.Lock()
	if a.connected {
		// Lost the race against a concurrent Connect; keep the first connection.
		a.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "duplicate connection")
		return nil
	}
	a.conn = conn
	a.send = make(chan []byte, sendBuffer)
	a.done = make(chan struct{})
	a.connected = true
	send, done := a.send, a.done
	a.mu.Unlock()

	go a.writePump(conn, send, done)
	go a.readPump(conn, done)
	go a.pingLoop(conn, done)

	a.logger.Info("Push channel connected", "userID", cred.UserID)
	a.dispatch(EventConnected, nil)
	return nil
}

// Disconnect closes the connection voluntarily. No EventDisconnected is
// dispatched; the owner asked for the teardown.
func (a *WSAdapter) Disconnect() error {
	conn, ok := a.teardown()
	if !ok {
		return nil
	}
	conn.Close(websocket.StatusNormalClosure, "client disconnect")
	a.logger.Info("Push channel disconnected")
	return nil
}

// teardown marks the adapter disconnected and returns the connection that was
// active, if any. Pumps observe the closed done channel and exit.
func (a *WSAdapter) teardown() (*websocket.Conn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, false
	}
	a.connected = false
	conn := a.conn
	a.conn = nil
	close(a.done)
	return conn, true
}

// Connected reports whether the duplex connection is currently up.
func (a *WSAdapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Send emits a named event with a JSON payload.
func (a *WSAdapter) Send(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &SendError{Event: event, Err: err}
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return &SendError{Event: event, Err: err}
	}

	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return &SendError{Event: event, Err: domain.ErrNotConnected}
	}
	send, done := a.send, a.done
	a.mu.Unlock()

	select {
	case send <- frame:
		return nil
	case <-done:
		return &SendError{Event: event, Err: domain.ErrNotConnected}
	case <-ctx.Done():
		return &SendError{Event: event, Err: ctx.Err()}
	}
}

// Subscribe registers a handler for a named event and returns an unsubscribe
// token. Handlers run on the read loop, preserving network-arrival order.
func (a *WSAdapter) Subscribe(event string, h Handler) Unsubscribe {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	if a.subs[event] == nil {
		a.subs[event] = make(map[int]Handler)
	}
	a.nextTok++
	tok := a.nextTok
	a.subs[event][tok] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subMu.Lock()
			defer a.subMu.Unlock()
			delete(a.subs[event], tok)
		})
	}
}

func (a *WSAdapter) dispatch(event string, data json.RawMessage) {
	a.subMu.RLock()
	handlers := make([]Handler, 0, len(a.subs[event]))
	for _, h := range a.subs[event] {
		handlers = append(handlers, h)
	}
	a.subMu.RUnlock()

	for _, h := range handlers {
		h(event, data)
	}
}

// readPump reads frames until the connection fails or is closed, dispatching
// each to its subscribers.
func (a *WSAdapter) readPump(conn *websocket.Conn, done chan struct{}) {
	for {
		_, raw, err := conn.Read(context.Background())
		if err != nil {
			select {
			case <-done:
				// Voluntary teardown already happened.
				return
			default:
			}

			reason := "read error"
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				a.logger.Info("Push channel closed by server")
				reason = "server closed"
			} else if !errors.Is(err, io.EOF) {
				a.logger.Error("Push channel read error", "error", err)
			}

			if _, ok := a.teardown(); ok {
				payload, _ := json.Marshal(Disconnected{Reason: reason})
				a.dispatch(EventDisconnected, payload)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			a.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		a.dispatch(frame.Event, frame.Data)
	}
}

// writePump writes queued frames to the connection with a bounded timeout.
func (a *WSAdapter) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	for {
		select {
		case frame := <-send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				a.logger.Error("Push channel write error", "error", err)
				if _, ok := a.teardown(); ok {
					payload, _ := json.Marshal(Disconnected{Reason: "write error"})
					a.dispatch(EventDisconnected, payload)
				}
				return
			}
		case <-done:
			return
		}
	}
}

// pingLoop sends heartbeats; a missed ping tears the connection down so the
// controller can react instead of waiting on a dead socket.
func (a *WSAdapter) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				a.logger.Warn("Heartbeat missed", "error", err)
				if _, ok := a.teardown(); ok {
					conn.Close(websocket.StatusAbnormalClosure, "heartbeat missed")
					payload, _ := json.Marshal(Disconnected{Reason: "heartbeat missed"})
					a.dispatch(EventDisconnected, payload)
				}
				return
			}
		case <-done:
			return
		}
	}
}
