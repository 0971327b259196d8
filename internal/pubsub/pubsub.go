package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
// It is intentionally simple to act as a wrapper for raw data.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g., "chat.message.upserted").
	Topic string
	// UserID identifies the user the message concerns, when there is one.
	UserID string
	// Payload contains the raw message data (JSON).
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context (e.g., timestamps).
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the Pub/Sub system.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscription is the token returned by Subscribe. Cancelling it detaches the
// handler; no further messages are delivered after Cancel returns. Every
// subscriber must cancel its subscriptions when it goes away so handlers
// cannot leak across room transitions.
type Subscription struct {
	topic  string
	cancel context.CancelFunc
}

// Topic returns the topic this subscription listens on.
func (s *Subscription) Topic() string { return s.topic }

// Cancel detaches the handler from the topic. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscriber defines the contract for receiving messages from the Pub/Sub system.
type Subscriber interface {
	// Subscribe attaches the handler to the topic and returns a cancellable
	// subscription token. Delivery runs in the background until the token is
	// cancelled or the subscriber is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error)
	Close() error
}

// Bus combines both halves of the Pub/Sub contract. The in-memory watermill
// bridge satisfies it.
type Bus interface {
	Publisher
	Subscriber
}
