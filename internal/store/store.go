// Package store holds the ordered, deduplicated message collections for the
// rooms of an active session. It is the single source of truth consumers
// render from. Live events and history pages can interleave (especially
// around a reconnect), so visible order comes from a sorted insert on
// (timestamp, id), not from arrival order, and applying the same event twice
// never changes the visible sequence.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradepost/chatkit/internal/domain"
)

// DefaultPendingWindow bounds how long after an optimistic insert a live
// broadcast echo is still matched against it.
const DefaultPendingWindow = 30 * time.Second

// localIDPrefix marks provisional ids so they can never collide with
// server-assigned ones.
const localIDPrefix = "local-"

// pendingSend tracks one optimistic message awaiting its REST confirmation.
type pendingSend struct {
	authorID   string
	body       string
	insertedAt time.Time
}

type roomState struct {
	ordered []domain.Message
	byID    map[string]int
	pending map[string]pendingSend // provisional id -> match info
}

// Store is the per-session message store. Safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	rooms         map[string]*roomState
	now           func() time.Time
	pendingWindow time.Duration
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source. Tests use this to pin the
// pending window.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPendingWindow overrides the echo-matching window for optimistic sends.
func WithPendingWindow(d time.Duration) Option {
	return func(s *Store) { s.pendingWindow = d }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		rooms:         make(map[string]*roomState),
		now:           func() time.Time { return time.Now().UTC() },
		pendingWindow: DefaultPendingWindow,
		logger:        slog.Default().With("service", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) room(roomID string) *roomState {
	rs, ok := s.rooms[roomID]
	if !ok {
		rs = &roomState{
			byID:    make(map[string]int),
			pending: make(map[string]pendingSend),
		}
		s.rooms[roomID] = rs
	}
	return rs
}

// Upsert applies one message to the store. If the id is unseen it is inserted
// at its sorted position; if it is known, edit and read fields are merged
// into the existing entry. A message matching an optimistic send in flight
// (same room, author and body inside the pending window) is treated as the
// broadcast echo of that send and adopted into the provisional entry instead
// of being inserted twice. Returns true when the visible sequence gained a
// new entry.
func (s *Store) Upsert(msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.room(msg.RoomID)

	if idx, ok := rs.byID[msg.ID]; ok {
		mergeInto(&rs.ordered[idx], msg)
		return false
	}

	if msg.Delivery == "" {
		msg.Delivery = domain.DeliveryDelivered
	}

	// Optimistic echo suppression: the send went over REST, the delivery
	// confirmation arrives over the push channel. Recognize it and replace
	// the provisional entry rather than showing the message twice.
	if tempID, ok := s.matchPendingLocked(rs, msg); ok {
		s.replaceLocked(rs, tempID, msg)
		delete(rs.pending, tempID)
		s.logger.Debug("Adopted broadcast echo into optimistic entry", "roomID", msg.RoomID, "id", msg.ID)
		return false
	}

	s.insertLocked(rs, msg)
	return true
}

// matchPendingLocked finds a provisional entry the message is an echo of.
func (s *Store) matchPendingLocked(rs *roomState, msg domain.Message) (string, bool) {
	cutoff := s.now().Add(-s.pendingWindow)
	for tempID, p := range rs.pending {
		if p.authorID == msg.AuthorID && p.body == msg.Body && !p.insertedAt.Before(cutoff) {
			return tempID, true
		}
	}
	return "", false
}

// insertLocked places msg at its sorted (timestamp, id) position.
func (s *Store) insertLocked(rs *roomState, msg domain.Message) {
	pos := sort.Search(len(rs.ordered), func(i int) bool {
		return msg.Before(rs.ordered[i])
	})
	rs.ordered = append(rs.ordered, domain.Message{})
	copy(rs.ordered[pos+1:], rs.ordered[pos:])
	rs.ordered[pos] = msg

	rs.byID[msg.ID] = pos
	for i := pos + 1; i < len(rs.ordered); i++ {
		rs.byID[rs.ordered[i].ID] = i
	}
}

// removeLocked deletes the entry with the given id, if present.
func (s *Store) removeLocked(rs *roomState, id string) (domain.Message, bool) {
	idx, ok := rs.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	removed := rs.ordered[idx]
	rs.ordered = append(rs.ordered[:idx], rs.ordered[idx+1:]...)
	delete(rs.byID, id)
	for i := idx; i < len(rs.ordered); i++ {
		rs.byID[rs.ordered[i].ID] = i
	}
	return removed, true
}

// replaceLocked swaps the provisional entry for the authoritative message,
// re-sorting on the authoritative (timestamp, id) key.
func (s *Store) replaceLocked(rs *roomState, tempID string, authoritative domain.Message) {
	old, had := s.removeLocked(rs, tempID)
	if had {
		// Carry local-only state the server echo cannot know about.
		if authoritative.ReplyToID == "" {
			authoritative.ReplyToID = old.ReplyToID
		}
	}
	if authoritative.Delivery == "" || authoritative.Delivery == domain.DeliveryPending {
		authoritative.Delivery = domain.DeliveryDelivered
	}
	if idx, ok := rs.byID[authoritative.ID]; ok {
		mergeInto(&rs.ordered[idx], authoritative)
		return
	}
	s.insertLocked(rs, authoritative)
}

// mergeInto folds edit and read state from incoming into the existing entry
// without moving it. Delivered always wins over pending.
func mergeInto(existing *domain.Message, incoming domain.Message) {
	if incoming.Edited {
		existing.Body = incoming.Body
		existing.Edited = true
		existing.EditedAt = incoming.EditedAt
	}
	for _, reader := range incoming.ReadBy {
		if !existing.ReadByUser(reader) {
			existing.ReadBy = append(existing.ReadBy, reader)
		}
	}
	if incoming.Delivery == domain.DeliveryDelivered && existing.Delivery != domain.DeliveryDelivered {
		existing.Delivery = domain.DeliveryDelivered
	}
}

// AddPending inserts a provisional entry for a local send before the REST
// call resolves. The returned message carries the locally generated id.
func (s *Store) AddPending(roomID, authorID string, out domain.OutboundMessage) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := domain.Message{
		ID:                 localIDPrefix + uuid.NewString(),
		RoomID:             roomID,
		AuthorID:           authorID,
		Body:               out.Body,
		Type:               out.Type,
		AttachmentURL:      out.AttachmentURL,
		AttachmentFilename: out.AttachmentFilename,
		ReplyToID:          out.ReplyToID,
		CreatedAt:          now,
		Delivery:           domain.DeliveryPending,
	}

	rs := s.room(roomID)
	s.insertLocked(rs, msg)
	rs.pending[msg.ID] = pendingSend{
		authorID:   authorID,
		body:       out.Body,
		insertedAt: now,
	}
	return msg
}

// ConfirmPending replaces the provisional entry with the authoritative
// message from the REST response. If a broadcast echo already adopted the
// entry, the authoritative fields are merged into it instead.
func (s *Store) ConfirmPending(roomID, tempID string, authoritative domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.room(roomID)
	delete(rs.pending, tempID)
	s.replaceLocked(rs, tempID, authoritative)
}

// FailPending marks the provisional entry failed. It stays visible so the
// caller can offer retry or resend instead of the message silently vanishing.
func (s *Store) FailPending(roomID, tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.room(roomID)
	delete(rs.pending, tempID)
	if idx, ok := rs.byID[tempID]; ok {
		rs.ordered[idx].Delivery = domain.DeliveryFailed
	}
}

// RetryFailed re-arms a failed optimistic entry: its delivery goes back to
// pending and echo matching resumes from now. Returns false if the id does
// not name a failed local entry.
func (s *Store) RetryFailed(roomID, tempID string) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.rooms[roomID]
	if !ok {
		return domain.Message{}, false
	}
	idx, ok := rs.byID[tempID]
	if !ok || rs.ordered[idx].Delivery != domain.DeliveryFailed {
		return domain.Message{}, false
	}
	rs.ordered[idx].Delivery = domain.DeliveryPending
	rs.pending[tempID] = pendingSend{
		authorID:   rs.ordered[idx].AuthorID,
		body:       rs.ordered[idx].Body,
		insertedAt: s.now(),
	}
	return rs.ordered[idx], true
}

// ListOrdered returns the room's messages in (timestamp, id) order.
func (s *Store) ListOrdered(roomID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, len(rs.ordered))
	copy(out, rs.ordered)
	return out
}

// Get returns one message by id.
func (s *Store) Get(roomID, messageID string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rooms[roomID]
	if !ok {
		return domain.Message{}, false
	}
	idx, ok := rs.byID[messageID]
	if !ok {
		return domain.Message{}, false
	}
	return rs.ordered[idx], true
}

// MarkRead records a read receipt on an existing message. Unknown ids are
// ignored; receipts can arrive for messages outside the loaded window.
func (s *Store) MarkRead(roomID, messageID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	idx, ok := rs.byID[messageID]
	if !ok {
		return false
	}
	if rs.ordered[idx].ReadByUser(userID) {
		return false
	}
	rs.ordered[idx].ReadBy = append(rs.ordered[idx].ReadBy, userID)
	return true
}

// LastKnown returns the newest server-confirmed message for the room, used
// to bound the catch-up fetch after a reconnect.
func (s *Store) LastKnown(roomID string) (id string, ts time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, found := s.rooms[roomID]
	if !found {
		return "", time.Time{}, false
	}
	for i := len(rs.ordered) - 1; i >= 0; i-- {
		if rs.ordered[i].Delivery == domain.DeliveryDelivered {
			return rs.ordered[i].ID, rs.ordered[i].CreatedAt, true
		}
	}
	return "", time.Time{}, false
}

// DropRoom discards everything held for a room. Closing the room view is the
// only way entries leave the store.
func (s *Store) DropRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// Len returns the number of visible messages for a room.
func (s *Store) Len(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rs.ordered)
}
