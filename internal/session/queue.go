package session

import (
	"sync"

	"github.com/tradepost/chatkit/internal/domain"
)

// DefaultQueueLimit bounds how many sends are held client-side while the
// session is degraded or rejoining.
const DefaultQueueLimit = 50

// queuedSend is one message accepted locally while the push path was down,
// waiting to be flushed over REST once the session is active again.
type queuedSend struct {
	roomID  string
	tempID  string
	payload domain.OutboundMessage
}

// sendQueue is a bounded FIFO of offline sends. When full, further sends are
// rejected with ErrQueueOverflow instead of being silently dropped.
type sendQueue struct {
	mu    sync.Mutex
	items []queuedSend
	limit int
}

func newSendQueue(limit int) *sendQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &sendQueue{limit: limit}
}

// push appends a send. It fails with domain.ErrQueueOverflow when the queue
// is at capacity.
func (q *sendQueue) push(item queuedSend) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.limit {
		return domain.ErrQueueOverflow
	}
	q.items = append(q.items, item)
	return nil
}

// drain removes and returns all queued sends in FIFO order.
func (q *sendQueue) drain() []queuedSend {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// dropRoom removes queued sends for a room that was closed.
func (q *sendQueue) dropRoom(roomID string) []queuedSend {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept, dropped []queuedSend
	for _, item := range q.items {
		if item.roomID == roomID {
			dropped = append(dropped, item)
		} else {
			kept = append(kept, item)
		}
	}
	q.items = kept
	return dropped
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
