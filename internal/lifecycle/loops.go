package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/eventbus"
)

// Run starts the background loops: the health check, the cloud heartbeat and
// a watcher keeping the snapshot's channel flag in step with transport
// events. Call it once; Shutdown stops everything it started.
func (m *Manager) Run(ctx context.Context) {
	m.services.Start(ctx)

	sub := eventbus.SubscribeTo(m.bus, eventbus.Engine.Channel, eventbus.WithSubscriptionName("lifecycle"))
	m.services.AddSubscriptions(sub)
	m.services.Go(func(ctx context.Context) { m.watchChannel(ctx, sub) })
	m.services.Go(m.healthLoop)
	m.services.Go(m.heartbeatLoop)
}

// Shutdown stops the background loops, waits for them to drain and closes
// the realtime channel.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.services.Shutdown(ctx)
	if cerr := m.client.CloseChannel(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.healthTick(ctx)
		}
	}
}

// healthTick probes the engine once and reconciles the status. Only the two
// settled states participate; Discovering, Starting and Error belong to the
// init sequence and an endpoint that was never resolved is left alone.
func (m *Manager) healthTick(ctx context.Context) {
	snap := m.Snapshot()
	switch snap.Status {
	case engine.StatusConnected, engine.StatusDisconnected:
	default:
		return
	}
	if snap.Endpoint == "" {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	err := m.client.Ping(probeCtx)
	cancel()

	switch {
	case snap.Status == engine.StatusConnected && err != nil:
		m.demote(ctx, err)
	case snap.Status == engine.StatusDisconnected && err == nil:
		m.promote(ctx)
	}
}

// demote drops a Connected engine to Disconnected and tears down the
// realtime channel. The cause is logged but not recorded as a snapshot
// error; an unreachable engine is a transient condition, not a fault.
func (m *Manager) demote(ctx context.Context, cause error) {
	if !m.transition(ctx, 0, engine.StatusConnected, engine.StatusDisconnected, "", func(s *engine.Snapshot) {
		s.ChannelUp = false
	}) {
		return
	}
	log.Printf("[Lifecycle] Engine unreachable, demoted: %v", cause)
	if err := m.client.CloseChannel(); err != nil {
		log.Printf("[Lifecycle] Channel close on demotion: %v", err)
	}
}

// promote restores a Disconnected engine to Connected and reopens the
// realtime channel best-effort.
func (m *Manager) promote(ctx context.Context) {
	if !m.transition(ctx, 0, engine.StatusDisconnected, engine.StatusConnected, "", func(s *engine.Snapshot) {
		s.LastError = ""
	}) {
		return
	}
	log.Printf("[Lifecycle] Engine reachable again, promoted")
	if err := m.client.OpenChannel(ctx); err != nil {
		log.Printf("[Lifecycle] Channel reopen after promotion failed: %v", err)
		return
	}
	m.apply(ctx, 0, func(s *engine.Snapshot) bool {
		s.ChannelUp = true
		return true
	})
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.heartbeatTick(ctx)
		}
	}
}

// heartbeatTick notifies the cloud of liveness through the engine. It only
// fires with a Connected engine and a stored cloud session; failures are
// logged and swallowed.
func (m *Manager) heartbeatTick(ctx context.Context) {
	if m.Snapshot().Status != engine.StatusConnected {
		return
	}
	creds, err := m.creds()
	if err != nil {
		log.Printf("[Lifecycle] Loading credentials for heartbeat failed: %v", err)
		return
	}
	if creds == nil || creds.Token == "" {
		return
	}

	hbCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	err = m.client.Heartbeat(hbCtx)
	cancel()

	event := eventbus.HeartbeatEvent{OK: err == nil, At: time.Now().UTC()}
	if err != nil {
		event.Error = err.Error()
		log.Printf("[Lifecycle] Cloud heartbeat failed: %v", err)
	}
	eventbus.Publish(ctx, m.bus, eventbus.Cloud.Heartbeat, eventbus.SourceLifecycle, event)
}

// watchChannel mirrors transport channel events into the snapshot so
// consumers polling Snapshot see the same channel state as bus subscribers.
func (m *Manager) watchChannel(ctx context.Context, sub *eventbus.TypedSubscription[eventbus.ChannelStateEvent]) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			up := env.Payload.Up
			_, changed := m.apply(ctx, 0, func(s *engine.Snapshot) bool {
				if s.ChannelUp == up {
					return false
				}
				s.ChannelUp = up
				return true
			})
			if changed {
				m.journal(ctx, string(eventbus.TopicEngineChannel), fmt.Sprintf("up=%t reason=%s", up, env.Payload.Reason))
			}
		}
	}
}
