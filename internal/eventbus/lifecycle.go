package eventbus

import (
	"context"
	"sync"
)

// SubscriptionCloser is the one method the lifecycle needs from a
// subscription of any payload type.
type SubscriptionCloser interface {
	Close()
}

// ServiceLifecycle bundles the plumbing every event-driven service here
// repeats: a cancellable context, subscriptions to tear down, and a wait
// group of workers. The zero value is ready to use.
type ServiceLifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []SubscriptionCloser

	wg sync.WaitGroup
}

// Start derives the service context from parent. Call it before Go.
func (l *ServiceLifecycle) Start(parent context.Context) {
	l.ctx, l.cancel = context.WithCancel(parent)
}

// AddSubscriptions registers subscriptions to close on Stop. Nil values
// are ignored.
func (l *ServiceLifecycle) AddSubscriptions(subs ...SubscriptionCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			l.subs = append(l.subs, sub)
		}
	}
}

// Go launches worker under the service context, tracked for Wait.
func (l *ServiceLifecycle) Go(worker func(ctx context.Context)) {
	if worker == nil {
		return
	}
	l.wg.Add(1)
	go func(ctx context.Context) {
		defer l.wg.Done()
		worker(ctx)
	}(l.ctx)
}

// Stop cancels the service context and closes registered subscriptions.
func (l *ServiceLifecycle) Stop() {
	if l.cancel != nil {
		l.cancel()
	}

	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Wait blocks until every worker returns or ctx expires.
func (l *ServiceLifecycle) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		l.wg.Wait()
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown is Stop followed by Wait.
func (l *ServiceLifecycle) Shutdown(ctx context.Context) error {
	l.Stop()
	return l.Wait(ctx)
}
