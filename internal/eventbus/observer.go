package eventbus

// Observer sees every published envelope. Implementations run on the
// publisher's goroutine and must not block.
type Observer interface {
	OnPublish(env Envelope)
}

// AddObserver registers obs for all future publishes. A nil bus or
// observer is a no-op.
func (b *Bus) AddObserver(obs Observer) {
	if b == nil || obs == nil {
		return
	}
	b.obsMu.Lock()
	b.observers = append(b.observers, obs)
	b.obsMu.Unlock()
}

func (b *Bus) notifyObservers(env Envelope) {
	b.obsMu.RLock()
	observers := b.observers
	b.obsMu.RUnlock()

	for _, obs := range observers {
		obs.OnPublish(env)
	}
}

// Metrics is a point-in-time view of the bus counters.
type Metrics struct {
	PublishTotal uint64
	DroppedTotal uint64
}

// Metrics returns the totals since construction. A nil bus reports zeros.
func (b *Bus) Metrics() Metrics {
	if b == nil {
		return Metrics{}
	}
	return Metrics{
		PublishTotal: b.published.Load(),
		DroppedTotal: b.dropped.Load(),
	}
}
