package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Bus routes published envelopes to per-topic subscriber lists. A nil *Bus
// is valid everywhere: publishes vanish and subscriptions arrive closed,
// which lets one-shot commands share code paths with the monitor.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscription
	buffers     map[Topic]int

	obsMu     sync.RWMutex
	observers []Observer

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New constructs a bus with per-topic channel buffers sized for each
// topic's expected traffic.
func New(opts ...BusOption) *Bus {
	b := &Bus{
		subscribers: make(map[Topic][]*Subscription),
		buffers: map[Topic]int{
			TopicEngineStatus:   64,
			TopicEngineSnapshot: 64,
			TopicEngineChannel:  64,
			TopicEngineRemote:   512,
			TopicSettingChanged: 64,
			TopicCloudSync:      16,
			TopicCloudHeartbeat: 16,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BusOption adjusts bus construction.
type BusOption func(*Bus)

// WithTopicBuffer overrides the subscriber channel buffer used for topic.
func WithTopicBuffer(topic Topic, size int) BusOption {
	return func(b *Bus) {
		if size < 1 {
			size = 1
		}
		b.buffers[topic] = size
	}
}

// Publish delivers env to every subscriber of its topic. Publishers never
// block; a slow consumer loses events per its topic's policy instead.
// A nil bus is a no-op.
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	if b == nil {
		return
	}
	b.publish(ctx, env)
}

func (b *Bus) publish(ctx context.Context, env Envelope) {
	if env.Topic == "" {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = SourceUnknown
	}

	b.published.Add(1)
	b.notifyObservers(env)

	if ctx == nil {
		ctx = context.Background()
	}

	// The read lock excludes Close, so a subscriber channel cannot be
	// closed mid-delivery.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers[env.Topic] {
		if ctx.Err() != nil {
			return
		}
		sub.deliver(env)
	}
}

// Subscribe registers a consumer for topic. A nil bus returns a
// subscription whose channel is already closed.
func (b *Bus) Subscribe(topic Topic, opts ...SubscriptionOption) *Subscription {
	if b == nil {
		return closedSubscription()
	}

	cfg := subscriptionConfig{buffer: b.bufferFor(topic)}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription{
		topic:  topic,
		name:   cfg.name,
		ch:     make(chan Envelope, cfg.buffer),
		done:   make(chan struct{}),
		bus:    b,
		policy: policyFor(topic),
	}
	if sub.policy.Strategy == StrategyOverflow {
		sub.startSpill()
	}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) bufferFor(topic Topic) int {
	if size, ok := b.buffers[topic]; ok && size > 0 {
		return size
	}
	return 1
}

// Shutdown closes every subscription and empties the routing table.
// A nil bus is a no-op.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.subscribers {
		for _, sub := range subs {
			sub.closeLocked()
		}
		delete(b.subscribers, topic)
	}
}

// detach removes s from its topic's list. Callers hold b.mu.
func (b *Bus) detach(s *Subscription) {
	subs := b.subscribers[s.topic]
	for i, candidate := range subs {
		if candidate == s {
			b.subscribers[s.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[s.topic]) == 0 {
		delete(b.subscribers, s.topic)
	}
}

// SubscriptionOption adjusts a single subscription.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	buffer int
	name   string
}

// WithSubscriptionName attaches a consumer name to drop log lines.
func WithSubscriptionName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.name = name
	}
}

// Subscription is one consumer's view of a topic.
type Subscription struct {
	topic Topic
	name  string
	ch    chan Envelope
	done  chan struct{} // closed when the subscription closes

	bus    *Bus
	closed atomic.Bool
	drops  atomic.Uint64
	policy DeliveryPolicy

	spill     *spillRing // non-nil only under StrategyOverflow
	spillStop context.CancelFunc
}

func closedSubscription() *Subscription {
	sub := &Subscription{
		ch:   make(chan Envelope),
		done: make(chan struct{}),
	}
	sub.closed.Store(true)
	close(sub.ch)
	close(sub.done)
	return sub
}

// C exposes the event channel. It closes when the subscription does.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Close removes the subscription from the bus and closes its channel.
// Safe to call repeatedly.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.stopSpill()
	close(s.done)

	if s.bus == nil {
		close(s.ch)
		return
	}
	s.bus.mu.Lock()
	s.bus.detach(s)
	close(s.ch)
	s.bus.mu.Unlock()
}

// closeLocked closes without re-acquiring the bus lock; Shutdown holds it.
func (s *Subscription) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.stopSpill()
	close(s.done)
	close(s.ch)
}

func (s *Subscription) startSpill() {
	capacity := s.policy.SpillCapacity
	if capacity <= 0 {
		capacity = defaultSpillCapacity
	}
	s.spill = newSpillRing(capacity)
	ctx, cancel := context.WithCancel(context.Background())
	s.spillStop = cancel
	go s.spill.drain(ctx, s.ch)
}

// stopSpill cancels the drain goroutine and waits for it to exit, so the
// channel can be closed behind it.
func (s *Subscription) stopSpill() {
	if s.spill == nil {
		return
	}
	s.spillStop()
	<-s.spill.idle
}

// deliver hands env to this subscriber without blocking the publisher.
// Runs under the bus read lock.
func (s *Subscription) deliver(env Envelope) {
	if s.closed.Load() {
		return
	}

	// Spill-backed subscriptions route everything through the ring so
	// ordering holds relative to the drain goroutine.
	if s.spill != nil {
		if s.spill.offer(env) {
			return
		}
		// Ring exhausted; shed into the channel directly even though
		// that can reorder against the drain goroutine.
		s.shed(env)
		return
	}

	select {
	case s.ch <- env:
		return
	default:
	}

	if s.policy.Strategy == StrategyDropNewest {
		s.countDrop("drop-newest")
		return
	}
	s.shed(env)
}

// shed makes room by discarding the oldest queued envelope, then retries
// the send once.
func (s *Subscription) shed(env Envelope) {
	select {
	case <-s.ch:
		s.countDrop("drop-oldest")
	default:
	}
	select {
	case s.ch <- env:
	default:
		s.countDrop("drop-current")
	}
}

func (s *Subscription) countDrop(kind string) {
	n := s.drops.Add(1)
	if s.bus != nil {
		s.bus.dropped.Add(1)
	}
	name := s.name
	if name == "" {
		name = "subscriber"
	}
	log.Printf("[EventBus] %s dropped event #%d on %s (%s)", name, n, s.topic, kind)
}
