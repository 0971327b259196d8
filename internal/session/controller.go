// Package session orchestrates the chat core: it drives the transport
// adapter, history loader, message store and typing tracker through one state
// machine, reconciles REST responses with push events, and fans results out
// to presentation consumers over the bus. One Controller exists per
// authenticated session; consumers receive it by reference and only ever
// read from it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tradepost/chatkit/internal/domain"
	"github.com/tradepost/chatkit/internal/history"
	"github.com/tradepost/chatkit/internal/pubsub"
	"github.com/tradepost/chatkit/internal/store"
	"github.com/tradepost/chatkit/internal/transport"
	"github.com/tradepost/chatkit/internal/typing"
)

const (
	// DefaultJoinTimeout bounds the wait for a join acknowledgment and each
	// catch-up fetch.
	DefaultJoinTimeout = 10 * time.Second
	// DefaultHistoryAttempts is how many times a network-failed history
	// fetch is tried before the room-open flow gives up.
	DefaultHistoryAttempts = 3
	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 500 * time.Millisecond
	// DefaultPageSize is the history page size used to seed a room.
	DefaultPageSize = 50
	// maxReconnectBackoff caps the transport reconnect delay.
	maxReconnectBackoff = 30 * time.Second
)

// HistoryLoader is the request/response surface the controller needs from
// the REST layer.
type HistoryLoader interface {
	FetchRoom(ctx context.Context, roomID string) (*domain.Room, error)
	FetchMessages(ctx context.Context, roomID string, page, perPage int) ([]domain.Message, bool, error)
	FetchMessagesSince(ctx context.Context, roomID, afterID string, afterTS time.Time) ([]domain.Message, error)
	PostMessage(ctx context.Context, roomID string, out domain.OutboundMessage) (*domain.Message, error)
}

// Dependencies holds the collaborators a Controller is wired with.
type Dependencies struct {
	Transport  transport.Adapter
	History    HistoryLoader
	Store      *store.Store
	Publisher  pubsub.Publisher
	Credential transport.Credential
}

// openRoom is the controller's per-room bookkeeping.
type openRoom struct {
	meta       *domain.Room
	generation int
	unread     int
	ackCh      chan struct{}
}

// Controller is the session state machine.
type Controller struct {
	transport transport.Adapter
	history   HistoryLoader
	store     *store.Store
	tracker   *typing.Tracker
	notifier  *typing.Notifier
	publisher pubsub.Publisher
	logger    *slog.Logger

	cred   transport.Credential
	userID string

	joinTimeout     time.Duration
	historyAttempts int
	backoffBase     time.Duration
	pageSize        int

	trackerOpts  []typing.Option
	notifierOpts []typing.NotifierOption

	mu           sync.Mutex
	state        State
	connState    domain.ConnectionState
	rooms        map[string]*openRoom
	generation   int
	closed       bool
	reconnecting bool

	queue  *sendQueue
	unsubs []transport.Unsubscribe
}

// Option configures a Controller.
type Option func(*Controller)

// WithQueueLimit sets the offline send queue capacity.
func WithQueueLimit(n int) Option {
	return func(c *Controller) { c.queue = newSendQueue(n) }
}

// WithJoinTimeout sets the join-ack and catch-up timeout.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Controller) { c.joinTimeout = d }
}

// WithHistoryAttempts sets the bounded retry count for network-failed
// history fetches.
func WithHistoryAttempts(n int) Option {
	return func(c *Controller) { c.historyAttempts = n }
}

// WithBackoffBase sets the first retry delay.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Controller) { c.backoffBase = d }
}

// WithPageSize sets the history seed page size.
func WithPageSize(n int) Option {
	return func(c *Controller) { c.pageSize = n }
}

// WithTrackerOptions passes options through to the typing tracker.
func WithTrackerOptions(opts ...typing.Option) Option {
	return func(c *Controller) { c.trackerOpts = append(c.trackerOpts, opts...) }
}

// WithNotifierOptions passes options through to the typing notifier.
func WithNotifierOptions(opts ...typing.NotifierOption) Option {
	return func(c *Controller) { c.notifierOpts = append(c.notifierOpts, opts...) }
}

// New wires a Controller and registers its transport subscriptions. Call
// Start to bring the push channel up and Shutdown to release everything.
func New(deps Dependencies, opts ...Option) *Controller {
	c := &Controller{
		transport:       deps.Transport,
		history:         deps.History,
		store:           deps.Store,
		publisher:       deps.Publisher,
		logger:          slog.Default().With("service", "session"),
		cred:            deps.Credential,
		userID:          deps.Credential.UserID,
		joinTimeout:     DefaultJoinTimeout,
		historyAttempts: DefaultHistoryAttempts,
		backoffBase:     DefaultBackoffBase,
		pageSize:        DefaultPageSize,
		state:           StateIdle,
		connState:       domain.ConnDisconnected,
		rooms:           make(map[string]*openRoom),
		queue:           newSendQueue(DefaultQueueLimit),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.tracker = typing.NewTracker(append([]typing.Option{
		typing.WithOnChange(c.publishTyping),
	}, c.trackerOpts...)...)
	c.notifier = typing.NewNotifier(c.emitTypingStart, c.emitTypingStop, c.notifierOpts...)

	c.unsubs = []transport.Unsubscribe{
		c.transport.Subscribe(transport.EventNewMessage, c.onNewMessage),
		c.transport.Subscribe(transport.EventUserTyping, c.onUserTyping),
		c.transport.Subscribe(transport.EventMessageRead, c.onMessageRead),
		c.transport.Subscribe(transport.EventUserJoined, c.onUserJoined),
		c.transport.Subscribe(transport.EventUserLeft, c.onUserLeft),
		c.transport.Subscribe(transport.EventJoinAck, c.onJoinAck),
		c.transport.Subscribe(transport.EventConnected, c.onConnected),
		c.transport.Subscribe(transport.EventDisconnected, c.onDisconnected),
	}
	return c
}

// Start brings the push channel up. Room-open flows work without it; the
// session just starts degraded until the connection lands.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrAlreadyClosed
	}
	c.connState = domain.ConnConnecting
	c.mu.Unlock()
	c.publishState()

	if err := c.transport.Connect(ctx, c.cred); err != nil {
		c.mu.Lock()
		c.connState = domain.ConnDisconnected
		c.mu.Unlock()
		c.publishState()
		return err
	}
	return nil
}

// OpenRoom runs the room-open flow: seed the store from history concurrently
// with the join emission, then wait for the join acknowledgment. Forbidden
// and not-found fetches close the room-open flow without retry; network
// failures retry with bounded backoff.
func (c *Controller) OpenRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrAlreadyClosed
	}
	if _, open := c.rooms[roomID]; open {
		c.mu.Unlock()
		return nil
	}
	c.generation++
	gen := c.generation
	c.rooms[roomID] = &openRoom{generation: gen}
	if c.state == StateIdle || c.state == StateActive {
		c.state = StateJoining
	}
	c.mu.Unlock()
	c.publishState()

	meta, msgs, err := c.fetchRoomSeed(ctx, roomID)
	if err != nil {
		c.abandonRoom(roomID, gen, err)
		return err
	}

	// Stale-response guard: a slow, late history page must not overwrite a
	// room the user has since left or reopened.
	c.mu.Lock()
	room, open := c.rooms[roomID]
	if !open || room.generation != gen {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale history result", "roomID", roomID, "generation", gen)
		return nil
	}
	room.meta = meta
	c.mu.Unlock()

	for i := range msgs {
		c.store.Upsert(msgs[i])
	}
	publishEvent(c, EventRoomSeeded, RoomSeeded{RoomID: roomID, Count: len(msgs)})

	return c.joinRoom(ctx, roomID, gen)
}

// fetchRoomSeed loads room metadata and the most recent history page,
// retrying network failures with exponential backoff.
func (c *Controller) fetchRoomSeed(ctx context.Context, roomID string) (*domain.Room, []domain.Message, error) {
	var lastErr error
	for attempt := 0; attempt < c.historyAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoffBase << (attempt - 1)):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		meta, err := c.history.FetchRoom(ctx, roomID)
		if err != nil {
			if isNetworkFetchError(err) {
				lastErr = err
				continue
			}
			return nil, nil, err
		}
		msgs, _, err := c.history.FetchMessages(ctx, roomID, 1, c.pageSize)
		if err != nil {
			if isNetworkFetchError(err) {
				lastErr = err
				continue
			}
			return nil, nil, err
		}
		return meta, msgs, nil
	}
	return nil, nil, lastErr
}

func isNetworkFetchError(err error) bool {
	var fe *history.FetchError
	return errors.As(err, &fe) && fe.Kind == history.FetchNetwork
}

// abandonRoom unwinds a failed room-open flow and surfaces the closure to
// consumers.
func (c *Controller) abandonRoom(roomID string, gen int, cause error) {
	c.mu.Lock()
	room, open := c.rooms[roomID]
	if !open || room.generation != gen {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, roomID)
	remaining := len(c.rooms)
	c.mu.Unlock()

	c.store.DropRoom(roomID)
	c.tracker.DropRoom(roomID)
	publishEvent(c, EventRoomClosed, RoomClosed{RoomID: roomID, Reason: cause.Error()})
	if remaining == 0 {
		c.transitionState(StateIdle)
	}
}

// joinRoom emits join_chat and waits for the acknowledgment or the timeout.
func (c *Controller) joinRoom(ctx context.Context, roomID string, gen int) error {
	if !c.transport.Connected() {
		// Join emission is deferred until the connection lands; the rejoin
		// flow picks it up.
		c.transitionState(StateDegraded)
		return nil
	}

	ack := make(chan struct{})
	c.mu.Lock()
	room, open := c.rooms[roomID]
	if !open || room.generation != gen {
		c.mu.Unlock()
		return nil
	}
	room.ackCh = ack
	c.mu.Unlock()

	if err := c.transport.Send(ctx, transport.EventJoinChat, transport.RoomRef{ChatID: roomID}); err != nil {
		c.transitionState(StateDegraded)
		return nil
	}

	select {
	case <-ack:
		c.transitionState(StateActive)
		c.flushQueue(context.Background())
		return nil
	case <-time.After(c.joinTimeout):
		// A missing ack is a transport hiccup, not a reason to hang the
		// open flow: fall over to the rejoin path.
		c.logger.Warn("Join acknowledgment timed out", "roomID", roomID)
		c.transitionState(StateRejoining)
		go c.rejoin()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseRoom leaves a room and discards everything held for it.
func (c *Controller) CloseRoom(roomID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrAlreadyClosed
	}
	if _, open := c.rooms[roomID]; !open {
		c.mu.Unlock()
		return domain.ErrRoomNotOpen
	}
	delete(c.rooms, roomID)
	remaining := len(c.rooms)
	c.mu.Unlock()

	c.notifier.Stop(roomID)
	if c.transport.Connected() {
		_ = c.transport.Send(context.Background(), transport.EventLeaveChat, transport.RoomRef{ChatID: roomID})
	}
	c.queue.dropRoom(roomID)
	c.store.DropRoom(roomID)
	c.tracker.DropRoom(roomID)
	publishEvent(c, EventRoomClosed, RoomClosed{RoomID: roomID, Reason: "closed"})

	if remaining == 0 {
		c.transitionState(StateIdle)
	}
	return nil
}

// SendMessage accepts a message for a room. While active it posts over REST
// and reconciles the response into the provisional entry; while degraded or
// rejoining it queues the send client-side, bounded by the queue limit.
func (c *Controller) SendMessage(ctx context.Context, roomID string, out domain.OutboundMessage) (domain.Message, error) {
	if err := out.Validate(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrPayloadRejected, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Message{}, domain.ErrAlreadyClosed
	}
	if _, open := c.rooms[roomID]; !open {
		c.mu.Unlock()
		return domain.Message{}, domain.ErrRoomNotOpen
	}
	state := c.state
	c.mu.Unlock()

	// Sending implicitly ends the local typing state.
	c.notifier.Stop(roomID)

	provisional := c.store.AddPending(roomID, c.userID, out)
	publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: roomID, Message: provisional})

	if state == StateDegraded || state == StateRejoining {
		if err := c.queue.push(queuedSend{roomID: roomID, tempID: provisional.ID, payload: out}); err != nil {
			c.store.FailPending(roomID, provisional.ID)
			failed, _ := c.store.Get(roomID, provisional.ID)
			publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: roomID, Message: failed})
			return failed, err
		}
		return provisional, nil
	}

	return c.postAndReconcile(ctx, roomID, provisional.ID, out)
}

// postAndReconcile runs the REST send for a provisional entry and applies the
// authoritative result.
func (c *Controller) postAndReconcile(ctx context.Context, roomID, tempID string, out domain.OutboundMessage) (domain.Message, error) {
	msg, err := c.history.PostMessage(ctx, roomID, out)
	if err != nil {
		// The entry stays visible as failed so the UI can offer retry.
		c.store.FailPending(roomID, tempID)
		failed, _ := c.store.Get(roomID, tempID)
		publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: roomID, Message: failed})
		return failed, err
	}

	c.store.ConfirmPending(roomID, tempID, *msg)
	confirmed, _ := c.store.Get(roomID, msg.ID)
	publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: roomID, Message: confirmed})
	return confirmed, nil
}

// ResendFailed retries a failed optimistic message in place.
func (c *Controller) ResendFailed(ctx context.Context, roomID, messageID string) (domain.Message, error) {
	retried, ok := c.store.RetryFailed(roomID, messageID)
	if !ok {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: roomID, Message: retried})

	out := domain.OutboundMessage{
		Body:               retried.Body,
		Type:               retried.Type,
		AttachmentURL:      retried.AttachmentURL,
		AttachmentFilename: retried.AttachmentFilename,
		ReplyToID:          retried.ReplyToID,
	}
	return c.postAndReconcile(ctx, roomID, messageID, out)
}

// MarkRead clears the room's unread counter, records the local read receipt
// and propagates it over the push channel.
func (c *Controller) MarkRead(ctx context.Context, roomID, messageID string) error {
	c.mu.Lock()
	room, open := c.rooms[roomID]
	if !open {
		c.mu.Unlock()
		return domain.ErrRoomNotOpen
	}
	room.unread = 0
	c.mu.Unlock()

	if c.store.MarkRead(roomID, messageID, c.userID) {
		if updated, ok := c.store.Get(roomID, messageID); ok {
			publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: roomID, Message: updated})
		}
	}
	publishEvent(c, EventUnreadChanged, UnreadUpdate{RoomID: roomID, Unread: 0})

	if c.transport.Connected() {
		_ = c.transport.Send(ctx, transport.EventMarkRead, transport.MessageRead{
			MessageID: messageID,
			UserID:    c.userID,
			ChatID:    roomID,
		})
	}
	return nil
}

// Keystroke registers local typing activity; the notifier debounces the
// network emissions.
func (c *Controller) Keystroke(roomID string) {
	c.mu.Lock()
	_, open := c.rooms[roomID]
	c.mu.Unlock()
	if open {
		c.notifier.Keystroke(roomID)
	}
}

// Shutdown closes the session: releases transport subscriptions, drops all
// per-room state and disconnects the push channel.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosed
	c.connState = domain.ConnDisconnected
	roomIDs := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		roomIDs = append(roomIDs, roomID)
	}
	c.rooms = make(map[string]*openRoom)
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	for _, roomID := range roomIDs {
		c.notifier.Stop(roomID)
		c.store.DropRoom(roomID)
		c.tracker.DropRoom(roomID)
		publishEvent(c, EventRoomClosed, RoomClosed{RoomID: roomID, Reason: "session closed"})
	}
	_ = c.transport.Disconnect()
	c.tracker.Shutdown()
	c.publishState()
	c.logger.Info("Session closed")
}

// --- accessors -----------------------------------------------------------

// State returns the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionState returns the push-channel lifecycle state.
func (c *Controller) ConnectionState() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

// Messages returns the room's visible messages in total order.
func (c *Controller) Messages(roomID string) []domain.Message {
	return c.store.ListOrdered(roomID)
}

// TypingUsers returns who is currently typing in a room.
func (c *Controller) TypingUsers(roomID string) []string {
	return c.tracker.ListTyping(roomID)
}

// Unread returns the room's unread counter.
func (c *Controller) Unread(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room, ok := c.rooms[roomID]; ok {
		return room.unread
	}
	return 0
}

// Room returns the room metadata loaded at open time.
func (c *Controller) Room(roomID string) (*domain.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[roomID]
	if !ok || room.meta == nil {
		return nil, false
	}
	meta := *room.meta
	return &meta, true
}

// QueuedSends reports how many sends are waiting for the session to become
// active again.
func (c *Controller) QueuedSends() int {
	return c.queue.len()
}

// --- transport event handlers -------------------------------------------

func (c *Controller) onNewMessage(_ string, data json.RawMessage) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("Dropping malformed new_message event", "error", err)
		return
	}
	c.applyInbound(msg)
}

// applyInbound reconciles one live (or caught-up) message into the store.
func (c *Controller) applyInbound(msg domain.Message) {
	c.mu.Lock()
	room, open := c.rooms[msg.RoomID]
	c.mu.Unlock()
	if !open {
		return
	}

	inserted := c.store.Upsert(msg)

	// A message from a user implicitly ends their typing signal.
	c.tracker.ClearTyping(msg.RoomID, msg.AuthorID)

	if inserted && msg.AuthorID != c.userID {
		c.mu.Lock()
		room.unread++
		unread := room.unread
		c.mu.Unlock()
		publishEvent(c, EventUnreadChanged, UnreadUpdate{RoomID: msg.RoomID, Unread: unread})
	}

	if visible, ok := c.store.Get(msg.RoomID, msg.ID); ok {
		publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: msg.RoomID, Message: visible})
	}
}

func (c *Controller) onUserTyping(_ string, data json.RawMessage) {
	var ev transport.UserTyping
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("Dropping malformed user_typing event", "error", err)
		return
	}
	c.mu.Lock()
	_, open := c.rooms[ev.ChatID]
	c.mu.Unlock()
	if !open || ev.UserID == c.userID {
		return
	}

	if ev.IsTyping {
		c.tracker.SetTyping(ev.ChatID, ev.UserID)
	} else {
		c.tracker.ClearTyping(ev.ChatID, ev.UserID)
	}
}

func (c *Controller) onMessageRead(_ string, data json.RawMessage) {
	var ev transport.MessageRead
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("Dropping malformed message_read event", "error", err)
		return
	}
	if c.store.MarkRead(ev.ChatID, ev.MessageID, ev.UserID) {
		if updated, ok := c.store.Get(ev.ChatID, ev.MessageID); ok {
			publishEvent(c, EventMessageUpserted, MessageUpdate{RoomID: ev.ChatID, Message: updated})
		}
	}
}

func (c *Controller) onUserJoined(_ string, data json.RawMessage) {
	var ev transport.UserPresence
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	room, open := c.rooms[ev.ChatID]
	if !open || room.meta == nil || room.meta.HasParticipant(ev.UserID) {
		return
	}
	room.meta.Participants = append(room.meta.Participants, ev.UserID)
}

func (c *Controller) onUserLeft(_ string, data json.RawMessage) {
	var ev transport.UserPresence
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}

	// Leaving a room also ends the user's typing signal; a stop event will
	// never arrive from someone who is gone.
	c.tracker.ClearTyping(ev.ChatID, ev.UserID)

	c.mu.Lock()
	defer c.mu.Unlock()
	room, open := c.rooms[ev.ChatID]
	if !open || room.meta == nil {
		return
	}
	for i, p := range room.meta.Participants {
		if p == ev.UserID {
			room.meta.Participants = append(room.meta.Participants[:i], room.meta.Participants[i+1:]...)
			break
		}
	}
}

func (c *Controller) onJoinAck(_ string, data json.RawMessage) {
	var ref transport.RoomRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return
	}
	c.mu.Lock()
	room, ok := c.rooms[ref.ChatID]
	var ack chan struct{}
	if ok && room.ackCh != nil {
		ack = room.ackCh
		room.ackCh = nil
	}
	c.mu.Unlock()
	if ack != nil {
		close(ack)
	}
}

func (c *Controller) onConnected(_ string, _ json.RawMessage) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connState = domain.ConnConnected
	startRejoin := false
	if len(c.rooms) > 0 && (c.state == StateDegraded || c.state == StateRejoining) {
		c.state = StateRejoining
		startRejoin = true
	}
	c.mu.Unlock()

	c.publishState()
	if startRejoin {
		go c.rejoin()
	}
}

func (c *Controller) onDisconnected(_ string, data json.RawMessage) {
	var ev transport.Disconnected
	_ = json.Unmarshal(data, &ev)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connState = domain.ConnDegraded
	if c.state == StateActive || c.state == StateRejoining {
		c.state = StateDegraded
	}
	c.mu.Unlock()

	c.logger.Warn("Push channel lost", "reason", ev.Reason)
	c.publishState()
	c.scheduleReconnect()
}

// --- reconnect and rejoin ------------------------------------------------

// scheduleReconnect starts a single background loop that re-dials the
// transport with capped exponential backoff until it lands or the session
// closes.
func (c *Controller) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
		}()

		backoff := c.backoffBase
		for {
			c.mu.Lock()
			closed := c.closed
			if !closed {
				c.connState = domain.ConnReconnecting
			}
			c.mu.Unlock()
			if closed || c.transport.Connected() {
				return
			}
			c.publishState()

			err := c.transport.Connect(context.Background(), c.cred)
			if err == nil {
				return
			}
			c.logger.Warn("Reconnect attempt failed", "error", err, "backoff", backoff)

			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxReconnectBackoff {
				backoff = maxReconnectBackoff
			}
		}
	}()
}

// rejoin re-emits join_chat for every open room and closes the outage gap
// with a catch-up fetch bounded to messages newer than the last known one,
// instead of re-running the full history load.
func (c *Controller) rejoin() {
	c.mu.Lock()
	if c.closed || c.state != StateRejoining {
		c.mu.Unlock()
		return
	}
	snapshot := make(map[string]int, len(c.rooms))
	for roomID, room := range c.rooms {
		snapshot[roomID] = room.generation
	}
	c.mu.Unlock()

	allOK := true
	for roomID, gen := range snapshot {
		if !c.rejoinRoom(roomID, gen) {
			allOK = false
		}
	}

	if !allOK {
		// Stay degraded and wait for the next connect event rather than
		// spinning on a flaky link.
		c.transitionState(StateDegraded)
		return
	}

	c.transitionState(StateActive)
	c.flushQueue(context.Background())
}

// rejoinRoom re-joins one room and applies its catch-up page.
func (c *Controller) rejoinRoom(roomID string, gen int) bool {
	if err := c.transport.Send(context.Background(), transport.EventJoinChat, transport.RoomRef{ChatID: roomID}); err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.joinTimeout)
	defer cancel()

	var msgs []domain.Message
	var err error
	if lastID, lastTS, ok := c.store.LastKnown(roomID); ok {
		msgs, err = c.history.FetchMessagesSince(ctx, roomID, lastID, lastTS)
	} else {
		msgs, _, err = c.history.FetchMessages(ctx, roomID, 1, c.pageSize)
	}
	if err != nil {
		c.logger.Warn("Catch-up fetch failed", "roomID", roomID, "error", err)
		return false
	}

	c.mu.Lock()
	room, open := c.rooms[roomID]
	stale := !open || room.generation != gen
	c.mu.Unlock()
	if stale {
		return true
	}

	for i := range msgs {
		c.applyInbound(msgs[i])
	}
	return true
}

// flushQueue posts queued offline sends in order.
func (c *Controller) flushQueue(ctx context.Context) {
	for _, item := range c.queue.drain() {
		if _, err := c.postAndReconcile(ctx, item.roomID, item.tempID, item.payload); err != nil {
			c.logger.Warn("Queued send failed", "roomID", item.roomID, "error", err)
		}
	}
}

// --- typing emissions and publishing -------------------------------------

func (c *Controller) emitTypingStart(roomID string) {
	// Typing signals are best-effort; a failed emission is not an error the
	// user needs to see.
	_ = c.transport.Send(context.Background(), transport.EventTypingStart, transport.RoomRef{ChatID: roomID})
}

func (c *Controller) emitTypingStop(roomID string) {
	_ = c.transport.Send(context.Background(), transport.EventTypingStop, transport.RoomRef{ChatID: roomID})
}

func (c *Controller) publishTyping(roomID string) {
	publishEvent(c, EventTypingChanged, TypingUpdate{
		RoomID: roomID,
		Users:  c.tracker.ListTyping(roomID),
	})
}

// transitionState moves the session state and publishes the change.
func (c *Controller) transitionState(next State) {
	c.mu.Lock()
	if c.closed || c.state == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()
	c.publishState()
}

func (c *Controller) publishState() {
	c.mu.Lock()
	update := StateUpdate{State: c.state, Connection: c.connState}
	c.mu.Unlock()
	publishEvent(c, EventStateChanged, update)
}

// publishEvent fans one typed event out to consumers.
func publishEvent[T any](c *Controller, event pubsub.Event[T], payload T) {
	if err := pubsub.Publish(context.Background(), c.publisher, event, payload); err != nil {
		c.logger.Error("Failed to publish consumer event", "topic", event.Name(), "error", err)
	}
}
