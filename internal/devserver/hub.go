package devserver

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradepost/chatkit/internal/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

// client is one connected websocket peer.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]bool
}

// inboundFrame pairs a parsed wire frame with the client that sent it.
type inboundFrame struct {
	client *client
	frame  transport.Frame
}

// roomFrame is one event to fan out to a room's connected members.
type roomFrame struct {
	roomID  string
	payload []byte
	exclude *client
}

// hub owns all connected clients and their room memberships. Everything runs
// on the single Run goroutine, so the maps need no locking.
type hub struct {
	state      *state
	register   chan *client
	unregister chan *client
	inbound    chan inboundFrame
	broadcast  chan roomFrame
	dropAll    chan struct{}
	clients    map[*client]bool
	logger     *slog.Logger
}

func newHub(st *state) *hub {
	return &hub{
		state:      st,
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inboundFrame),
		broadcast:  make(chan roomFrame),
		dropAll:    make(chan struct{}),
		clients:    make(map[*client]bool),
		logger:     slog.Default().With("service", "devserver"),
	}
}

// run is the hub's event loop. It must run in its own goroutine.
func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Info("Client connected", "userID", c.userID, "total", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				for roomID := range c.rooms {
					h.fanOut(roomID, encodeFrame(transport.EventUserLeft, transport.UserPresence{
						UserID: c.userID,
						ChatID: roomID,
					}), c)
				}
				h.logger.Info("Client disconnected", "userID", c.userID, "total", len(h.clients))
			}

		case ev := <-h.inbound:
			h.handleFrame(ev.client, ev.frame)

		case rf := <-h.broadcast:
			h.fanOut(rf.roomID, rf.payload, rf.exclude)

		case <-h.dropAll:
			// Closing the conn makes each read pump fail and unregister
			// its client through the normal path.
			for c := range h.clients {
				_ = c.conn.Close()
			}
			h.logger.Info("Dropped all clients", "count", len(h.clients))
		}
	}
}

func (h *hub) handleFrame(c *client, frame transport.Frame) {
	switch frame.Event {
	case transport.EventJoinChat:
		var ref transport.RoomRef
		if json.Unmarshal(frame.Data, &ref) != nil || ref.ChatID == "" {
			return
		}
		c.rooms[ref.ChatID] = true
		c.deliver(encodeFrame(transport.EventJoinAck, ref))
		h.fanOut(ref.ChatID, encodeFrame(transport.EventUserJoined, transport.UserPresence{
			UserID: c.userID,
			ChatID: ref.ChatID,
		}), c)

	case transport.EventLeaveChat:
		var ref transport.RoomRef
		if json.Unmarshal(frame.Data, &ref) != nil {
			return
		}
		delete(c.rooms, ref.ChatID)
		h.fanOut(ref.ChatID, encodeFrame(transport.EventUserLeft, transport.UserPresence{
			UserID: c.userID,
			ChatID: ref.ChatID,
		}), c)

	case transport.EventTypingStart, transport.EventTypingStop:
		var ref transport.RoomRef
		if json.Unmarshal(frame.Data, &ref) != nil {
			return
		}
		h.fanOut(ref.ChatID, encodeFrame(transport.EventUserTyping, transport.UserTyping{
			UserID:   c.userID,
			ChatID:   ref.ChatID,
			IsTyping: frame.Event == transport.EventTypingStart,
		}), c)

	case transport.EventMarkRead:
		var read transport.MessageRead
		if json.Unmarshal(frame.Data, &read) != nil {
			return
		}
		read.UserID = c.userID
		if h.state.markRead(read.ChatID, read.MessageID, read.UserID) {
			h.fanOut(read.ChatID, encodeFrame(transport.EventMessageRead, read), nil)
		}

	default:
		h.logger.Debug("Ignoring unknown event", "event", frame.Event, "userID", c.userID)
	}
}

// fanOut delivers a payload to every connected member of a room, dropping
// clients whose send buffer is full rather than blocking the loop.
func (h *hub) fanOut(roomID string, payload []byte, exclude *client) {
	for c := range h.clients {
		if c == exclude || !c.rooms[roomID] {
			continue
		}
		c.deliver(payload)
	}
}

func (c *client) deliver(payload []byte) {
	select {
	case c.send <- payload:
	default:
		// Slow consumer; the write pump will notice the closed connection.
	}
}

func encodeFrame(event string, payload any) []byte {
	data, _ := json.Marshal(payload)
	out, _ := json.Marshal(transport.Frame{Event: event, Data: data})
	return out
}

// readPump reads frames off the connection and forwards them to the hub.
func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame transport.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		h.inbound <- inboundFrame{client: c, frame: frame}
	}
}

// writePump drains the send channel onto the connection and keeps it alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
