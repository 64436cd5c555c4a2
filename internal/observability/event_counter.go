package observability

import (
	"sync"

	"github.com/aimatrx/matrx/internal/eventbus"
)

// EventCounter tallies published envelopes per topic. Register it with
// Bus.AddObserver; increments happen on the publisher's goroutine, so the
// critical section stays a map write and nothing more.
type EventCounter struct {
	mu     sync.Mutex
	counts map[eventbus.Topic]uint64
}

// NewEventCounter returns an empty counter.
func NewEventCounter() *EventCounter {
	return &EventCounter{counts: make(map[eventbus.Topic]uint64)}
}

// OnPublish implements eventbus.Observer.
func (c *EventCounter) OnPublish(env eventbus.Envelope) {
	if env.Topic == "" {
		return
	}
	c.mu.Lock()
	c.counts[env.Topic]++
	c.mu.Unlock()
}

// Snapshot copies the current tallies.
func (c *EventCounter) Snapshot() map[eventbus.Topic]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[eventbus.Topic]uint64, len(c.counts))
	for topic, n := range c.counts {
		out[topic] = n
	}
	return out
}
