package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tradepost/chatkit/internal/topics"
)

// Event[T] wraps a topic name and provides type-safe publishing and
// subscribing. Declaring one auto-registers the topic with the default
// catalog.
type Event[T any] struct {
	topicName string
}

// NewEvent creates a typed bus event and registers it with the default
// topic registry.
func NewEvent[T any](name, description string) Event[T] {
	topics.Define(topics.Config{
		Name:        name,
		Scope:       topics.ScopeBus,
		Description: description,
	})
	return Event[T]{topicName: name}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.Name(), err)
	}

	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		Payload: data,
	})
}

// SubscribeTyped attaches a handler that receives decoded payloads instead of
// raw bytes. Undecodable payloads are reported to the handler's error return
// path by failing the delivery.
func SubscribeTyped[T any](ctx context.Context, s Subscriber, event Event[T], handler func(ctx context.Context, payload T) error) (*Subscription, error) {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", event.Name(), err)
		}
		return handler(ctx, payload)
	})
}
