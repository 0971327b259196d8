// Package devserver is a self-contained fake of the marketplace chat backend:
// the REST history endpoints plus the websocket event stream, backed by an
// in-memory state. Integration tests and the demo-server CLI command run
// against it.
package devserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tradepost/chatkit/internal/domain"
	"github.com/tradepost/chatkit/internal/transport"
)

// Server is the fake backend.
type Server struct {
	e     *echo.Echo
	hub   *hub
	state *state

	mu     sync.Mutex
	tokens map[string]string // bearer token -> userID

	upgrader websocket.Upgrader
}

// New creates a dev server with empty state. Register users and rooms before
// pointing a client at it.
func New() *Server {
	s := &Server{
		e:      echo.New(),
		state:  newState(),
		tokens: make(map[string]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.hub = newHub(s.state)
	go s.hub.run()

	s.e.HideBanner = true
	s.e.Use(middleware.Recover())

	s.e.GET("/chats/:roomID", s.getRoom)
	s.e.GET("/chats/:roomID/messages", s.getMessages)
	s.e.POST("/chats/:roomID/messages", s.postMessage)
	s.e.GET("/ws", s.serveWS)

	return s
}

// AddUser registers a bearer token for a user.
func (s *Server) AddUser(userID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// AddRoom registers a room.
func (s *Server) AddRoom(room domain.Room) {
	s.state.addRoom(room)
}

// SeedMessage inserts a message directly into the backend state and returns
// it with its assigned id.
func (s *Server) SeedMessage(msg domain.Message) domain.Message {
	return s.state.seed(msg)
}

// BroadcastMessage pushes a message into state and fans it out to the room's
// connected members, as if another participant had posted it.
func (s *Server) BroadcastMessage(roomID, authorID string, out domain.OutboundMessage) domain.Message {
	msg := s.state.appendMessage(roomID, authorID, out)
	s.hub.broadcast <- roomFrame{roomID: roomID, payload: encodeFrame(transport.EventNewMessage, msg)}
	return msg
}

// DropClients severs every live websocket connection, as if the backend went
// down mid-session. The REST endpoints keep serving.
func (s *Server) DropClients() {
	s.hub.dropAll <- struct{}{}
}

// Handler exposes the server as an http.Handler for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves on the given address until Shutdown.
func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// authenticate resolves the bearer token to a user id.
func (s *Server) authenticate(c echo.Context) (string, bool) {
	header := c.Request().Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[token]
	return userID, ok
}

// roomForUser loads the room and checks membership, writing the appropriate
// error response when either fails.
func (s *Server) roomForUser(c echo.Context, userID string) (domain.Room, bool) {
	room, ok := s.state.room(c.Param("roomID"))
	if !ok {
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
		return domain.Room{}, false
	}
	if !room.HasParticipant(userID) {
		_ = c.JSON(http.StatusForbidden, map[string]string{"error": "not a participant"})
		return domain.Room{}, false
	}
	return room, true
}

func (s *Server) getRoom(c echo.Context) error {
	userID, ok := s.authenticate(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
	room, ok := s.roomForUser(c, userID)
	if !ok {
		return nil
	}
	return c.JSON(http.StatusOK, room)
}

func (s *Server) getMessages(c echo.Context) error {
	userID, ok := s.authenticate(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
	room, ok := s.roomForUser(c, userID)
	if !ok {
		return nil
	}

	type pageResponse struct {
		Messages []domain.Message `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}

	if afterID := c.QueryParam("after_id"); afterID != "" {
		millis, _ := strconv.ParseInt(c.QueryParam("after_ts"), 10, 64)
		msgs := s.state.since(room.ID, afterID, time.UnixMilli(millis).UTC())
		return c.JSON(http.StatusOK, pageResponse{Messages: msgs})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	msgs, hasMore := s.state.page(room.ID, page, perPage)
	return c.JSON(http.StatusOK, pageResponse{Messages: msgs, HasMore: hasMore})
}

func (s *Server) postMessage(c echo.Context) error {
	userID, ok := s.authenticate(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
	room, ok := s.roomForUser(c, userID)
	if !ok {
		return nil
	}

	var out domain.OutboundMessage
	if err := c.Bind(&out); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed payload"})
	}
	if err := out.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	msg := s.state.appendMessage(room.ID, userID, out)
	s.hub.broadcast <- roomFrame{roomID: room.ID, payload: encodeFrame(transport.EventNewMessage, msg)}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) serveWS(c echo.Context) error {
	userID, ok := s.authenticate(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 256),
		rooms:  make(map[string]bool),
	}
	s.hub.register <- cl

	go cl.writePump()
	go cl.readPump(s.hub)
	return nil
}
