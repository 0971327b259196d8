package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emitRecorder captures start and stop emissions.
type emitRecorder struct {
	mu     sync.Mutex
	starts []string
	stops  []string
}

func (r *emitRecorder) start(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, roomID)
}

func (r *emitRecorder) stop(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, roomID)
}

func (r *emitRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.starts), len(r.stops)
}

func TestNotifier_EmitsStartOncePerBurst(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(rec.start, rec.stop, WithIdleTimeout(time.Hour))

	n.Keystroke("r1")
	n.Keystroke("r1")
	n.Keystroke("r1")

	starts, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops)
}

func TestNotifier_StopEmitsOnce(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(rec.start, rec.stop, WithIdleTimeout(time.Hour))

	n.Keystroke("r1")
	n.Stop("r1")
	n.Stop("r1") // second stop is a no-op

	starts, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestNotifier_StopWithoutTypingIsNoop(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(rec.start, rec.stop)

	n.Stop("r1")

	_, stops := rec.counts()
	assert.Equal(t, 0, stops)
}

func TestNotifier_IdleTimeoutEmitsStop(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(rec.start, rec.stop, WithIdleTimeout(10*time.Millisecond))

	n.Keystroke("r1")

	require.Eventually(t, func() bool {
		starts, stops := rec.counts()
		return starts == 1 && stops == 1
	}, time.Second, 5*time.Millisecond)

	// A new keystroke after idle starts a fresh burst.
	n.Keystroke("r1")
	require.Eventually(t, func() bool {
		starts, stops := rec.counts()
		return starts == 2 && stops == 2
	}, time.Second, 5*time.Millisecond)
}

func TestNotifier_RoomsAreIndependent(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(rec.start, rec.stop, WithIdleTimeout(time.Hour))

	n.Keystroke("r1")
	n.Keystroke("r2")
	n.Stop("r1")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"r1", "r2"}, rec.starts)
	assert.Equal(t, []string{"r1"}, rec.stops)
}
