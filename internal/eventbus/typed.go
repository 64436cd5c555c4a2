package eventbus

import (
	"sync"
	"time"
)

// TypedEnvelope pairs envelope metadata with a concrete payload type.
type TypedEnvelope[T any] struct {
	Topic     Topic
	Timestamp time.Time
	Source    Source
	Payload   T
}

// TypedSubscription narrows a raw subscription to payloads of type T.
// Envelopes carrying any other payload type are skipped.
type TypedSubscription[T any] struct {
	raw  *Subscription
	ch   chan TypedEnvelope[T]
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscribe creates a typed subscription on topic. The typed channel is
// unbuffered; backpressure is absorbed by the raw subscription's buffer.
// A nil bus yields an already-closed subscription, matching Publish's nil
// handling.
func Subscribe[T any](bus *Bus, topic Topic, opts ...SubscriptionOption) *TypedSubscription[T] {
	ts := &TypedSubscription[T]{
		ch:   make(chan TypedEnvelope[T]),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	if bus == nil {
		close(ts.ch)
		close(ts.done)
		return ts
	}
	ts.raw = bus.Subscribe(topic, opts...)
	go ts.forward()
	return ts
}

// C returns the typed event channel. It closes when the subscription does.
func (ts *TypedSubscription[T]) C() <-chan TypedEnvelope[T] {
	return ts.ch
}

// Close tears down the subscription and waits for the forwarder to stop.
// Safe to call repeatedly.
func (ts *TypedSubscription[T]) Close() {
	ts.once.Do(func() {
		close(ts.quit)
		if ts.raw != nil {
			ts.raw.Close()
		}
		<-ts.done
	})
}

// forward copies matching envelopes from the raw channel until it closes
// or Close is called.
func (ts *TypedSubscription[T]) forward() {
	defer close(ts.done)
	defer close(ts.ch)

	for {
		var env Envelope
		var ok bool
		select {
		case <-ts.quit:
			return
		case env, ok = <-ts.raw.C():
			if !ok {
				return
			}
		}

		payload, matches := env.Payload.(T)
		if !matches {
			continue
		}
		typed := TypedEnvelope[T]{
			Topic:     env.Topic,
			Timestamp: env.Timestamp,
			Source:    env.Source,
			Payload:   payload,
		}
		select {
		case ts.ch <- typed:
		case <-ts.quit:
			return
		}
	}
}
