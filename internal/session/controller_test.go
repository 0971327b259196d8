package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepost/chatkit/internal/domain"
	"github.com/tradepost/chatkit/internal/history"
	"github.com/tradepost/chatkit/internal/session"
	"github.com/tradepost/chatkit/internal/store"
	"github.com/tradepost/chatkit/internal/testutils"
	"github.com/tradepost/chatkit/internal/transport"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeAdapter is an in-memory transport. Tests drive inbound events through
// emit and inspect what the controller sent.
type fakeAdapter struct {
	mu          sync.Mutex
	connected   bool
	failConnect bool
	autoAck     bool
	sent        []sentFrame
	subs        map[string][]transport.Handler
}

type sentFrame struct {
	event   string
	payload any
}

func newFakeAdapter(autoAck bool) *fakeAdapter {
	return &fakeAdapter{autoAck: autoAck, subs: make(map[string][]transport.Handler)}
}

func (f *fakeAdapter) Connect(_ context.Context, _ transport.Credential) error {
	f.mu.Lock()
	if f.failConnect {
		f.mu.Unlock()
		return &transport.ConnectError{Kind: transport.ConnectUnreachable, Err: errors.New("endpoint down")}
	}
	if f.connected {
		f.mu.Unlock()
		return nil
	}
	f.connected = true
	f.mu.Unlock()

	f.dispatch(transport.EventConnected, nil)
	return nil
}

func (f *fakeAdapter) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeAdapter) Send(_ context.Context, event string, payload any) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return &transport.SendError{Event: event, Err: domain.ErrNotConnected}
	}
	f.sent = append(f.sent, sentFrame{event: event, payload: payload})
	ack := f.autoAck && event == transport.EventJoinChat
	f.mu.Unlock()

	if ack {
		data, _ := json.Marshal(payload)
		f.dispatch(transport.EventJoinAck, data)
	}
	return nil
}

func (f *fakeAdapter) Subscribe(event string, h transport.Handler) transport.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[event] = append(f.subs[event], h)
	return func() {}
}

func (f *fakeAdapter) dispatch(event string, data json.RawMessage) {
	f.mu.Lock()
	handlers := append([]transport.Handler(nil), f.subs[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(event, data)
	}
}

// emit delivers an inbound event as if the server had pushed it.
func (f *fakeAdapter) emit(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	f.dispatch(event, data)
}

// dropConnection simulates an involuntary disconnect.
func (f *fakeAdapter) dropConnection() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.dispatch(transport.EventDisconnected, []byte(`{"reason":"test"}`))
}

func (f *fakeAdapter) setFailConnect(fail bool) {
	f.mu.Lock()
	f.failConnect = fail
	f.mu.Unlock()
}

func (f *fakeAdapter) sentEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.event
	}
	return out
}

func (f *fakeAdapter) countSent(event string) int {
	n := 0
	for _, e := range f.sentEvents() {
		if e == event {
			n++
		}
	}
	return n
}

// fakeHistory is an in-memory history loader.
type fakeHistory struct {
	mu         sync.Mutex
	rooms      map[string]domain.Room
	pages      map[string][]domain.Message
	since      map[string][]domain.Message
	roomErrs   []error
	postErr    error
	posts      []domain.OutboundMessage
	postSeq    int
	fetchGate  chan struct{}
	fetchBegan chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		rooms: make(map[string]domain.Room),
		pages: make(map[string][]domain.Message),
		since: make(map[string][]domain.Message),
	}
}

func (f *fakeHistory) FetchRoom(_ context.Context, roomID string) (*domain.Room, error) {
	f.mu.Lock()
	began, gate := f.fetchBegan, f.fetchGate
	f.mu.Unlock()
	if began != nil {
		began <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.roomErrs) > 0 {
		err := f.roomErrs[0]
		f.roomErrs = f.roomErrs[1:]
		return nil, err
	}
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, &history.FetchError{Kind: history.FetchNotFound, Err: domain.ErrRoomNotFound}
	}
	return &room, nil
}

func (f *fakeHistory) FetchMessages(_ context.Context, roomID string, _, _ int) ([]domain.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.pages[roomID]...), false, nil
}

func (f *fakeHistory) FetchMessagesSince(_ context.Context, roomID, _ string, _ time.Time) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.since[roomID]...), nil
}

func (f *fakeHistory) PostMessage(_ context.Context, roomID string, out domain.OutboundMessage) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.postSeq++
	f.posts = append(f.posts, out)
	msg := domain.Message{
		ID:        fmt.Sprintf("m-post-%d", f.postSeq),
		RoomID:    roomID,
		AuthorID:  "alice",
		Body:      out.Body,
		Type:      out.Type,
		CreatedAt: time.Now().UTC(),
		Delivery:  domain.DeliveryDelivered,
	}
	return &msg, nil
}

func (f *fakeHistory) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fixture struct {
	adapter   *fakeAdapter
	history   *fakeHistory
	publisher *testutils.RecordingPublisher
	ctrl      *session.Controller
}

func newFixture(t *testing.T, autoAck bool, opts ...session.Option) *fixture {
	t.Helper()

	adapter := newFakeAdapter(autoAck)
	hist := newFakeHistory()
	hist.rooms["r1"] = domain.Room{ID: "r1", Participants: []string{"alice", "bob"}}
	hist.pages["r1"] = []domain.Message{
		testutils.Message("m1", "r1", "bob", "hello", base),
		testutils.Message("m2", "r1", "alice", "hi there", base.Add(time.Second)),
	}
	publisher := &testutils.RecordingPublisher{}

	opts = append([]session.Option{
		session.WithJoinTimeout(200 * time.Millisecond),
		session.WithBackoffBase(5 * time.Millisecond),
	}, opts...)

	ctrl := session.New(session.Dependencies{
		Transport:  adapter,
		History:    hist,
		Store:      store.New(),
		Publisher:  publisher,
		Credential: transport.Credential{URL: "ws://test", Token: "t", UserID: "alice"},
	}, opts...)
	t.Cleanup(ctrl.Shutdown)

	return &fixture{adapter: adapter, history: hist, publisher: publisher, ctrl: ctrl}
}

func (fx *fixture) startActive(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.ctrl.Start(context.Background()))
	require.NoError(t, fx.ctrl.OpenRoom(context.Background(), "r1"))
	require.Equal(t, session.StateActive, fx.ctrl.State())
}

func TestOpenRoom_SeedsStoreAndJoins(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, fx.ctrl.Start(context.Background()))

	require.NoError(t, fx.ctrl.OpenRoom(context.Background(), "r1"))

	assert.Equal(t, session.StateActive, fx.ctrl.State())
	assert.Equal(t, domain.ConnConnected, fx.ctrl.ConnectionState())

	msgs := fx.ctrl.Messages("r1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)

	room, ok := fx.ctrl.Room("r1")
	require.True(t, ok)
	assert.True(t, room.HasParticipant("bob"))

	assert.Equal(t, 1, fx.adapter.countSent(transport.EventJoinChat))
	assert.Len(t, fx.publisher.ByTopic(session.EventRoomSeeded.Name()), 1)
}

func TestOpenRoom_TwiceIsNoop(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	require.NoError(t, fx.ctrl.OpenRoom(context.Background(), "r1"))
	assert.Equal(t, 1, fx.adapter.countSent(transport.EventJoinChat))
}

func TestOpenRoom_ForbiddenTerminatesWithoutRetry(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, fx.ctrl.Start(context.Background()))
	fx.history.mu.Lock()
	fx.history.roomErrs = []error{&history.FetchError{Kind: history.FetchForbidden, Err: domain.ErrRoomForbidden}}
	fx.history.mu.Unlock()

	err := fx.ctrl.OpenRoom(context.Background(), "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRoomForbidden)

	assert.Equal(t, session.StateIdle, fx.ctrl.State())
	assert.Empty(t, fx.ctrl.Messages("r1"))
	assert.Len(t, fx.publisher.ByTopic(session.EventRoomClosed.Name()), 1)
}

func TestOpenRoom_RetriesNetworkFailures(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, fx.ctrl.Start(context.Background()))
	fx.history.mu.Lock()
	fx.history.roomErrs = []error{
		&history.FetchError{Kind: history.FetchNetwork, Err: errors.New("timeout")},
		&history.FetchError{Kind: history.FetchNetwork, Err: errors.New("timeout")},
	}
	fx.history.mu.Unlock()

	require.NoError(t, fx.ctrl.OpenRoom(context.Background(), "r1"))
	assert.Equal(t, session.StateActive, fx.ctrl.State())
	assert.Len(t, fx.ctrl.Messages("r1"), 2)
}

func TestOpenRoom_ExhaustedRetriesFail(t *testing.T) {
	fx := newFixture(t, true, session.WithHistoryAttempts(2))
	require.NoError(t, fx.ctrl.Start(context.Background()))
	fx.history.mu.Lock()
	fx.history.roomErrs = []error{
		&history.FetchError{Kind: history.FetchNetwork, Err: errors.New("timeout")},
		&history.FetchError{Kind: history.FetchNetwork, Err: errors.New("timeout")},
	}
	fx.history.mu.Unlock()

	err := fx.ctrl.OpenRoom(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, session.StateIdle, fx.ctrl.State())
}

func TestOpenRoom_LateHistoryDiscardedAfterClose(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, fx.ctrl.Start(context.Background()))

	fx.history.mu.Lock()
	fx.history.fetchBegan = make(chan struct{}, 1)
	fx.history.fetchGate = make(chan struct{})
	fx.history.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fx.ctrl.OpenRoom(context.Background(), "r1") }()

	<-fx.history.fetchBegan
	require.NoError(t, fx.ctrl.CloseRoom("r1"))
	close(fx.history.fetchGate)

	require.NoError(t, <-done)
	assert.Empty(t, fx.ctrl.Messages("r1"), "late history must not resurrect a closed room")
	assert.Equal(t, session.StateIdle, fx.ctrl.State())
}

func TestSendMessage_ActiveConfirmsAndSuppressesEcho(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	sent, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "selling?", Type: domain.MessageTypeText})
	require.NoError(t, err)
	assert.Equal(t, "m-post-1", sent.ID)
	assert.Equal(t, domain.DeliveryDelivered, sent.Delivery)

	// The broadcast echo of our own send arrives afterwards.
	echo := testutils.Message("m-post-1", "r1", "alice", "selling?", sent.CreatedAt)
	fx.adapter.emit(t, transport.EventNewMessage, echo)

	msgs := fx.ctrl.Messages("r1")
	assert.Len(t, msgs, 3)
	assert.Equal(t, 0, fx.ctrl.Unread("r1"), "own messages never count as unread")
}

func TestSendMessage_ValidatesPayload(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	_, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: ""})
	assert.ErrorIs(t, err, domain.ErrPayloadRejected)
	assert.Len(t, fx.ctrl.Messages("r1"), 2)
}

func TestSendMessage_RoomNotOpen(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, fx.ctrl.Start(context.Background()))

	_, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "hi", Type: domain.MessageTypeText})
	assert.ErrorIs(t, err, domain.ErrRoomNotOpen)
}

func TestSendMessage_RESTFailureStaysVisibleAndResends(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.history.mu.Lock()
	fx.history.postErr = &history.FetchError{Kind: history.FetchNetwork, Err: errors.New("timeout")}
	fx.history.mu.Unlock()

	failed, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "hi", Type: domain.MessageTypeText})
	require.Error(t, err)
	assert.Equal(t, domain.DeliveryFailed, failed.Delivery)
	assert.Len(t, fx.ctrl.Messages("r1"), 3, "failed sends stay visible")

	fx.history.mu.Lock()
	fx.history.postErr = nil
	fx.history.mu.Unlock()

	resent, err := fx.ctrl.ResendFailed(context.Background(), "r1", failed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, resent.Delivery)
	assert.Len(t, fx.ctrl.Messages("r1"), 3)
}

func TestSendMessage_DegradedQueuesUntilLimit(t *testing.T) {
	fx := newFixture(t, true, session.WithQueueLimit(3))
	fx.startActive(t)
	fx.adapter.setFailConnect(true)
	fx.adapter.dropConnection()
	require.Equal(t, session.StateDegraded, fx.ctrl.State())

	for i := 0; i < 3; i++ {
		msg, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: fmt.Sprintf("queued %d", i), Type: domain.MessageTypeText})
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryPending, msg.Delivery)
	}
	assert.Equal(t, 3, fx.ctrl.QueuedSends())

	overflow, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "one too many", Type: domain.MessageTypeText})
	assert.ErrorIs(t, err, domain.ErrQueueOverflow)
	assert.Equal(t, domain.DeliveryFailed, overflow.Delivery)
	assert.Equal(t, 3, fx.ctrl.QueuedSends())
	assert.Equal(t, 0, fx.history.postCount(), "nothing is posted while degraded")
}

func TestReconnect_CatchesUpAndFlushesQueue(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.adapter.setFailConnect(true)
	fx.adapter.dropConnection()
	require.Equal(t, session.StateDegraded, fx.ctrl.State())

	// Two sends while offline, and three messages missed during the outage.
	_, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "offline 1", Type: domain.MessageTypeText})
	require.NoError(t, err)
	_, err = fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "offline 2", Type: domain.MessageTypeText})
	require.NoError(t, err)

	fx.history.mu.Lock()
	fx.history.since["r1"] = []domain.Message{
		testutils.Message("m6", "r1", "bob", "missed 1", base.Add(10*time.Second)),
		testutils.Message("m7", "r1", "bob", "missed 2", base.Add(11*time.Second)),
		testutils.Message("m8", "r1", "bob", "missed 3", base.Add(12*time.Second)),
	}
	fx.history.mu.Unlock()

	fx.adapter.setFailConnect(false)

	require.Eventually(t, func() bool {
		return fx.ctrl.State() == session.StateActive
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return fx.ctrl.QueuedSends() == 0 && fx.history.postCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	byID := make(map[string]bool)
	for _, m := range fx.ctrl.Messages("r1") {
		byID[m.ID] = true
	}
	assert.True(t, byID["m6"] && byID["m7"] && byID["m8"], "outage gap is caught up")
	assert.GreaterOrEqual(t, fx.adapter.countSent(transport.EventJoinChat), 2, "rooms are re-joined on reconnect")
}

func TestJoinAckTimeout_FallsOverToRejoin(t *testing.T) {
	fx := newFixture(t, false, session.WithJoinTimeout(50*time.Millisecond))
	require.NoError(t, fx.ctrl.Start(context.Background()))

	require.NoError(t, fx.ctrl.OpenRoom(context.Background(), "r1"))

	require.Eventually(t, func() bool {
		return fx.ctrl.State() == session.StateActive
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, fx.adapter.countSent(transport.EventJoinChat), 2)
}

func TestOpenRoom_WithoutConnectionIsDegraded(t *testing.T) {
	fx := newFixture(t, true)

	require.NoError(t, fx.ctrl.OpenRoom(context.Background(), "r1"))

	assert.Equal(t, session.StateDegraded, fx.ctrl.State())
	assert.Len(t, fx.ctrl.Messages("r1"), 2, "history loads without the push channel")

	// The connection lands later; the room is joined and caught up.
	require.NoError(t, fx.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool {
		return fx.ctrl.State() == session.StateActive
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, fx.adapter.countSent(transport.EventJoinChat))
}

func TestInboundMessages_CountUnreadAndClearTyping(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.adapter.emit(t, transport.EventUserTyping, transport.UserTyping{UserID: "bob", ChatID: "r1", IsTyping: true})
	assert.Equal(t, []string{"bob"}, fx.ctrl.TypingUsers("r1"))

	fx.adapter.emit(t, transport.EventNewMessage, testutils.Message("m3", "r1", "bob", "still there?", base.Add(5*time.Second)))

	assert.Empty(t, fx.ctrl.TypingUsers("r1"), "a message implicitly ends the author's typing signal")
	assert.Equal(t, 1, fx.ctrl.Unread("r1"))

	// Duplicate delivery of the same event changes nothing.
	fx.adapter.emit(t, transport.EventNewMessage, testutils.Message("m3", "r1", "bob", "still there?", base.Add(5*time.Second)))
	assert.Equal(t, 1, fx.ctrl.Unread("r1"))
	assert.Len(t, fx.ctrl.Messages("r1"), 3)
}

func TestInbound_IgnoresUnopenedRooms(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.adapter.emit(t, transport.EventNewMessage, testutils.Message("mx", "r9", "bob", "wrong room", base))
	fx.adapter.emit(t, transport.EventUserTyping, transport.UserTyping{UserID: "bob", ChatID: "r9", IsTyping: true})

	assert.Empty(t, fx.ctrl.Messages("r9"))
	assert.Empty(t, fx.ctrl.TypingUsers("r9"))
}

func TestUserLeft_ClearsTypingAndParticipant(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.adapter.emit(t, transport.EventUserTyping, transport.UserTyping{UserID: "bob", ChatID: "r1", IsTyping: true})
	fx.adapter.emit(t, transport.EventUserLeft, transport.UserPresence{UserID: "bob", ChatID: "r1"})

	assert.Empty(t, fx.ctrl.TypingUsers("r1"), "no stop signal will come from someone who left")
	room, ok := fx.ctrl.Room("r1")
	require.True(t, ok)
	assert.False(t, room.HasParticipant("bob"))
}

func TestMarkRead_PropagatesAndResetsUnread(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.adapter.emit(t, transport.EventNewMessage, testutils.Message("m3", "r1", "bob", "ping", base.Add(5*time.Second)))
	require.Equal(t, 1, fx.ctrl.Unread("r1"))

	require.NoError(t, fx.ctrl.MarkRead(context.Background(), "r1", "m3"))

	assert.Equal(t, 0, fx.ctrl.Unread("r1"))
	assert.Equal(t, 1, fx.adapter.countSent(transport.EventMarkRead))

	got, ok := findMessage(fx.ctrl.Messages("r1"), "m3")
	require.True(t, ok)
	assert.True(t, got.ReadByUser("alice"))
}

func TestInboundReadReceipt_Recorded(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.adapter.emit(t, transport.EventMessageRead, transport.MessageRead{MessageID: "m2", UserID: "bob", ChatID: "r1"})

	got, ok := findMessage(fx.ctrl.Messages("r1"), "m2")
	require.True(t, ok)
	assert.True(t, got.ReadByUser("bob"))
}

func TestKeystroke_DebouncesOverTransport(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.ctrl.Keystroke("r1")
	fx.ctrl.Keystroke("r1")
	fx.ctrl.Keystroke("r1")
	assert.Equal(t, 1, fx.adapter.countSent(transport.EventTypingStart))

	// Sending a message ends the typing burst.
	_, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "done typing", Type: domain.MessageTypeText})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.adapter.countSent(transport.EventTypingStop))
}

func TestCloseRoom_DropsEverything(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)
	fx.adapter.emit(t, transport.EventUserTyping, transport.UserTyping{UserID: "bob", ChatID: "r1", IsTyping: true})

	require.NoError(t, fx.ctrl.CloseRoom("r1"))

	assert.Empty(t, fx.ctrl.Messages("r1"))
	assert.Empty(t, fx.ctrl.TypingUsers("r1"))
	assert.Equal(t, session.StateIdle, fx.ctrl.State())
	assert.Equal(t, 1, fx.adapter.countSent(transport.EventLeaveChat))
	assert.ErrorIs(t, fx.ctrl.CloseRoom("r1"), domain.ErrRoomNotOpen)
}

func TestShutdown_IsTerminalAndIdempotent(t *testing.T) {
	fx := newFixture(t, true)
	fx.startActive(t)

	fx.ctrl.Shutdown()
	fx.ctrl.Shutdown()

	assert.Equal(t, session.StateClosed, fx.ctrl.State())
	assert.False(t, fx.adapter.Connected())

	_, err := fx.ctrl.SendMessage(context.Background(), "r1", domain.OutboundMessage{Body: "hi", Type: domain.MessageTypeText})
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
	assert.ErrorIs(t, fx.ctrl.OpenRoom(context.Background(), "r1"), domain.ErrAlreadyClosed)
	assert.ErrorIs(t, fx.ctrl.Start(context.Background()), domain.ErrAlreadyClosed)
}

func findMessage(msgs []domain.Message, id string) (domain.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}
