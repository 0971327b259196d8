// Package testutils holds shared helpers for package tests: a manual clock
// for expiry-driven components and a recording publisher for asserting on
// bus traffic.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/tradepost/chatkit/internal/domain"
	"github.com/tradepost/chatkit/internal/pubsub"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock pinned to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RecordingPublisher captures every published bus message for assertions.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

// Publish implements pubsub.Publisher.
func (p *RecordingPublisher) Publish(_ context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

// Close implements pubsub.Publisher.
func (p *RecordingPublisher) Close() error {
	return nil
}

// Messages returns everything published so far.
func (p *RecordingPublisher) Messages() []pubsub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pubsub.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// ByTopic returns the published messages for one topic.
func (p *RecordingPublisher) ByTopic(topic string) []pubsub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pubsub.Message
	for _, msg := range p.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Message builds a delivered message for store and session tests.
func Message(id, roomID, authorID, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		RoomID:    roomID,
		AuthorID:  authorID,
		Body:      body,
		Type:      domain.MessageTypeText,
		CreatedAt: at,
		Delivery:  domain.DeliveryDelivered,
	}
}
