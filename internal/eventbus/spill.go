package eventbus

import (
	"context"
	"sync"
)

// spillRing is a fixed-capacity FIFO that absorbs bursts on topics whose
// policy is StrategyOverflow. A drain goroutine feeds the subscriber
// channel so publishers never block on it.
type spillRing struct {
	mu    sync.Mutex
	slots []Envelope
	head  int
	used  int

	wake chan struct{} // buffered; offer signals drain that work exists
	idle chan struct{} // closed when drain exits
}

func newSpillRing(capacity int) *spillRing {
	return &spillRing{
		slots: make([]Envelope, capacity),
		wake:  make(chan struct{}, 1),
		idle:  make(chan struct{}),
	}
}

// offer enqueues env, reporting false when the ring is full.
func (r *spillRing) offer(env Envelope) bool {
	r.mu.Lock()
	if r.used == len(r.slots) {
		r.mu.Unlock()
		return false
	}
	r.slots[(r.head+r.used)%len(r.slots)] = env
	r.used++
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// take dequeues the oldest envelope.
func (r *spillRing) take() (Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used == 0 {
		return Envelope{}, false
	}
	env := r.slots[r.head]
	r.slots[r.head] = Envelope{} // release the payload reference
	r.head = (r.head + 1) % len(r.slots)
	r.used--
	return env, true
}

// size reports the number of queued envelopes.
func (r *spillRing) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

// drain forwards queued envelopes to out until ctx is cancelled, sleeping
// on wake between batches.
func (r *spillRing) drain(ctx context.Context, out chan<- Envelope) {
	defer close(r.idle)
	for {
		for {
			env, ok := r.take()
			if !ok {
				break
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}
	}
}
