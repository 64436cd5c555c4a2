package eventbus

import "context"

// TopicDef binds a topic name to its payload type so publishes and
// subscriptions agree at compile time.
type TopicDef[T any] struct{ topic Topic }

// NewTopicDef wraps topic in a typed descriptor.
func NewTopicDef[T any](topic Topic) TopicDef[T] { return TopicDef[T]{topic: topic} }

// Topic returns the descriptor's topic name.
func (d TopicDef[T]) Topic() Topic { return d.topic }

// Publish sends payload on bus under the descriptor's topic. A nil bus is
// a no-op.
func Publish[T any](ctx context.Context, bus *Bus, td TopicDef[T], source Source, payload T) {
	if bus == nil {
		return
	}
	bus.publish(ctx, Envelope{
		Topic:   td.topic,
		Source:  source,
		Payload: payload,
	})
}

// SubscribeTo opens a typed subscription for the descriptor's topic.
func SubscribeTo[T any](bus *Bus, td TopicDef[T], opts ...SubscriptionOption) *TypedSubscription[T] {
	return Subscribe[T](bus, td.topic, opts...)
}
