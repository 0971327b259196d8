package devserver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tradepost/chatkit/internal/domain"
)

// state is the in-memory backend the dev server serves from.
type state struct {
	mu       sync.Mutex
	rooms    map[string]domain.Room
	messages map[string][]domain.Message // per room, (created_at, id) order
	seq      int
	now      func() time.Time
}

func newState() *state {
	return &state{
		rooms:    make(map[string]domain.Room),
		messages: make(map[string][]domain.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *state) addRoom(room domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = s.now()
	}
	s.rooms[room.ID] = room
}

func (s *state) room(roomID string) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// seed inserts a prebuilt message, assigning an id and timestamp if missing.
func (s *state) seed(msg domain.Message) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		s.seq++
		msg.ID = fmt.Sprintf("m-%04d", s.seq)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.insertLocked(msg)
	return msg
}

// appendMessage creates the authoritative message for a send request.
func (s *state) appendMessage(roomID, authorID string, out domain.OutboundMessage) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg := domain.Message{
		ID:                 fmt.Sprintf("m-%04d", s.seq),
		RoomID:             roomID,
		AuthorID:           authorID,
		Body:               out.Body,
		Type:               out.Type,
		AttachmentURL:      out.AttachmentURL,
		AttachmentFilename: out.AttachmentFilename,
		ReplyToID:          out.ReplyToID,
		CreatedAt:          s.now(),
	}
	s.insertLocked(msg)
	return msg
}

func (s *state) insertLocked(msg domain.Message) {
	msgs := s.messages[msg.RoomID]
	pos := sort.Search(len(msgs), func(i int) bool {
		return msg.Before(msgs[i])
	})
	msgs = append(msgs, domain.Message{})
	copy(msgs[pos+1:], msgs[pos:])
	msgs[pos] = msg
	s.messages[msg.RoomID] = msgs
}

// page returns one history page. Page 1 holds the most recent messages,
// oldest-first within the page.
func (s *state) page(roomID string, page, perPage int) ([]domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[roomID]
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	end := len(msgs) - (page-1)*perPage
	if end <= 0 {
		return nil, false
	}
	start := end - perPage
	if start < 0 {
		start = 0
	}
	out := make([]domain.Message, end-start)
	copy(out, msgs[start:end])
	return out, start > 0
}

// since returns the messages strictly newer than the given (timestamp, id)
// position, oldest-first.
func (s *state) since(roomID, afterID string, afterTS time.Time) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := domain.Message{ID: afterID, CreatedAt: afterTS}
	var out []domain.Message
	for _, msg := range s.messages[roomID] {
		if anchor.Before(msg) {
			out = append(out, msg)
		}
	}
	return out
}

func (s *state) markRead(roomID, messageID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[roomID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if msgs[i].ReadByUser(userID) {
			return false
		}
		msgs[i].ReadBy = append(msgs[i].ReadBy, userID)
		return true
	}
	return false
}
