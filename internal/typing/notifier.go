package typing

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is how long after the last keystroke the local user is
// considered to have stopped typing.
const DefaultIdleTimeout = 3 * time.Second

// Notifier is the send-side debounce. Repeated keystrokes while already
// typing refresh the idle timer without re-emitting; only the idle-to-typing
// transition emits a start, and the matching stop fires exactly once, on idle
// timeout or on message send.
type Notifier struct {
	mu     sync.Mutex
	timers map[string]*time.Timer // roomID -> idle timer; presence implies "typing"

	idle      time.Duration
	emitStart func(roomID string)
	emitStop  func(roomID string)
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithIdleTimeout sets a custom idle window.
func WithIdleTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.idle = d }
}

// WithAfterFunc overrides timer creation, for tests.
func WithAfterFunc(fn func(d time.Duration, fn func()) *time.Timer) NotifierOption {
	return func(n *Notifier) { n.afterFunc = fn }
}

// NewNotifier creates a notifier that reports transitions through the given
// emit callbacks. Emissions happen outside the notifier's lock.
func NewNotifier(emitStart, emitStop func(roomID string), opts ...NotifierOption) *Notifier {
	n := &Notifier{
		timers:    make(map[string]*time.Timer),
		idle:      DefaultIdleTimeout,
		emitStart: emitStart,
		emitStop:  emitStop,
		afterFunc: time.AfterFunc,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Keystroke registers local typing activity for a room.
func (n *Notifier) Keystroke(roomID string) {
	n.mu.Lock()
	if timer, typing := n.timers[roomID]; typing {
		timer.Reset(n.idle)
		n.mu.Unlock()
		return
	}
	n.timers[roomID] = n.afterFunc(n.idle, func() { n.idleElapsed(roomID) })
	n.mu.Unlock()

	n.emitStart(roomID)
}

// Stop ends the typing state for a room, emitting a stop if one was active.
// Message send and room close both call it.
func (n *Notifier) Stop(roomID string) {
	n.mu.Lock()
	timer, typing := n.timers[roomID]
	if typing {
		timer.Stop()
		delete(n.timers, roomID)
	}
	n.mu.Unlock()

	if typing {
		n.emitStop(roomID)
	}
}

// idleElapsed fires when the idle timer elapses with no further keystrokes.
func (n *Notifier) idleElapsed(roomID string) {
	n.mu.Lock()
	_, typing := n.timers[roomID]
	delete(n.timers, roomID)
	n.mu.Unlock()

	if typing {
		n.emitStop(roomID)
	}
}
