// Package typing tracks which users are currently typing in each room. The
// receive side is expiry-based: a start signal with no follow-up stop is
// cleared automatically after the TTL, since stop signals can be lost on
// disconnect. The send side (Notifier) emits exactly one start per
// idle-to-typing transition and one stop on idle timeout or message send.
package typing

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a typing signal stays alive without a refresh.
	DefaultTTL = 3 * time.Second

	// DefaultSweepInterval is how often expired signals are reaped. Reads
	// filter on expiry anyway; the sweep keeps the maps from growing.
	DefaultSweepInterval = 1 * time.Second
)

// Tracker is the receive-side typing set, keyed by room then user.
type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]time.Time // roomID -> userID -> expiry

	ttl      time.Duration
	now      func() time.Time
	onChange func(roomID string)

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL sets a custom expiry window for typing signals.
func WithTTL(d time.Duration) Option {
	return func(t *Tracker) { t.ttl = d }
}

// WithClock overrides the tracker's time source. Tests advance it and call
// Sweep to drive expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithOnChange registers a callback invoked whenever a room's typing set
// changes membership.
func WithOnChange(fn func(roomID string)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// NewTracker creates a tracker and starts its background sweep.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		rooms:       make(map[string]map[string]time.Time),
		ttl:         DefaultTTL,
		now:         func() time.Time { return time.Now().UTC() },
		sweepTicker: time.NewTicker(DefaultSweepInterval),
		stopSweep:   make(chan struct{}),
		logger:      slog.Default().With("service", "typing"),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.runSweep()
	return t
}

// SetTyping inserts or refreshes a user's typing signal for a room.
func (t *Tracker) SetTyping(roomID, userID string) {
	t.mu.Lock()
	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[string]time.Time)
		t.rooms[roomID] = room
	}
	_, present := room[userID]
	room[userID] = t.now().Add(t.ttl)
	t.mu.Unlock()

	if !present {
		t.notify(roomID)
	}
}

// ClearTyping removes a user's typing signal. A message arriving from the
// user and an explicit stop signal both land here.
func (t *Tracker) ClearTyping(roomID, userID string) {
	t.mu.Lock()
	room, ok := t.rooms[roomID]
	var present bool
	if ok {
		_, present = room[userID]
		delete(room, userID)
		if len(room) == 0 {
			delete(t.rooms, roomID)
		}
	}
	t.mu.Unlock()

	if present {
		t.notify(roomID)
	}
}

// ListTyping returns the users currently typing in a room, sorted for a
// stable render order. Expired signals are filtered out even if the sweep
// has not run yet.
func (t *Tracker) ListTyping(roomID string) []string {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	users := make([]string, 0, len(room))
	for userID, expiry := range room {
		if expiry.After(now) {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// Sweep reaps expired signals and fires change notifications for affected
// rooms. The background loop calls it periodically; tests call it directly
// after advancing the clock.
func (t *Tracker) Sweep() {
	now := t.now()
	var changed []string

	t.mu.Lock()
	for roomID, room := range t.rooms {
		before := len(room)
		for userID, expiry := range room {
			if !expiry.After(now) {
				delete(room, userID)
			}
		}
		if len(room) != before {
			changed = append(changed, roomID)
		}
		if len(room) == 0 {
			delete(t.rooms, roomID)
		}
	}
	t.mu.Unlock()

	for _, roomID := range changed {
		t.notify(roomID)
	}
}

// DropRoom discards the typing set for a room.
func (t *Tracker) DropRoom(roomID string) {
	t.mu.Lock()
	delete(t.rooms, roomID)
	t.mu.Unlock()
}

// Shutdown stops the background sweep.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stopSweep)
	})
}

func (t *Tracker) runSweep() {
	for {
		select {
		case <-t.sweepTicker.C:
			t.Sweep()
		case <-t.stopSweep:
			t.sweepTicker.Stop()
			return
		}
	}
}

func (t *Tracker) notify(roomID string) {
	if t.onChange != nil {
		t.onChange(roomID)
	}
}
