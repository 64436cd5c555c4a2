package lifecycle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/engine"
)

// Initialize runs the connection sequence: register credentials, launch the
// engine when this deployment manages one, discover the endpoint, adopt it
// and load the snapshot extras. At most one sequence is ever accepted; while
// one is running or has already completed, further calls return nil without
// doing anything. Refresh re-arms the guard.
//
// The returned error is the sequence's fatal outcome (engine failed to start,
// discovery exhausted). Best-effort snapshot loads never fail Initialize.
func (m *Manager) Initialize(ctx context.Context) error {
	m.guardMu.Lock()
	if m.initGuard {
		m.guardMu.Unlock()
		log.Printf("[Lifecycle] Initialization already in progress, ignoring")
		return nil
	}
	m.initGuard = true
	gen := m.generation.Add(1)
	m.guardMu.Unlock()

	return m.runSequence(ctx, gen)
}

// Refresh re-arms the initialization guard and runs the sequence again. This
// is the only path that re-enables Initialize after it has run.
func (m *Manager) Refresh(ctx context.Context) error {
	m.guardMu.Lock()
	m.initGuard = false
	m.guardMu.Unlock()
	log.Printf("[Lifecycle] Refresh requested")
	return m.Initialize(ctx)
}

// releaseGuard re-enables Initialize after a failed sequence. The generation
// check keeps a superseded sequence from releasing a guard that a newer
// Refresh has since re-armed.
func (m *Manager) releaseGuard(gen uint64) {
	m.guardMu.Lock()
	if gen == m.generation.Load() {
		m.initGuard = false
	}
	m.guardMu.Unlock()
}

func (m *Manager) runSequence(ctx context.Context, gen uint64) error {
	m.client.SetTokenSource(m.tokens)

	m.transition(ctx, gen, "", engine.StatusDiscovering, "", nil)

	if m.sup.Managed() {
		m.transition(ctx, gen, "", engine.StatusStarting, "", nil)
		if err := m.sup.Start(ctx); err != nil {
			log.Printf("[Lifecycle] Engine start failed: %v", err)
			m.transition(ctx, gen, "", engine.StatusError, err.Error(), nil)
			m.releaseGuard(gen)
			return err
		}
	}

	endpoint, err := m.locate(ctx)
	if err != nil {
		log.Printf("[Lifecycle] Engine discovery failed: %v", err)
		m.transition(ctx, gen, "", engine.StatusDisconnected, err.Error(), nil)
		m.releaseGuard(gen)
		return err
	}

	// The client's endpoint sits outside the snapshot lock, so check for a
	// superseding run before touching it. A newer sequence owns it now.
	if gen != m.generation.Load() {
		log.Printf("[Lifecycle] Initialization superseded, discarding endpoint %s", endpoint)
		return nil
	}
	m.client.SetEndpoint(endpoint)

	if !m.transition(ctx, gen, "", engine.StatusConnected, "", func(s *engine.Snapshot) {
		s.Endpoint = endpoint
		s.LastError = ""
	}) {
		return nil
	}
	log.Printf("[Lifecycle] Engine adopted at %s", endpoint)

	if m.store != nil {
		if err := m.store.SetState(ctx, store.StateLastEndpoint, endpoint); err != nil {
			log.Printf("[Lifecycle] Persisting endpoint failed: %v", err)
		}
	}

	m.loadExtras(ctx, gen)
	return nil
}

// locate discovers the engine endpoint. For a managed engine the probe is
// retried until the budget runs out; an unmanaged deployment gets a single
// pass because nothing will start listening later.
func (m *Manager) locate(ctx context.Context) (string, error) {
	endpoint, err := m.probe(ctx)
	if err == nil || !m.sup.Managed() {
		return endpoint, err
	}

	deadline := time.Now().Add(probeBudget)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(probeRetryDelay):
		}
		if endpoint, err = m.probe(ctx); err == nil {
			return endpoint, nil
		}
	}
	return "", err
}

// loadExtras fills in the snapshot fields that are nice to have but never
// block a connection: tool list, version, system info, browser status, the
// realtime channel, a settings sync and the cloud registration. The steps run
// concurrently and each failure is logged and contained to its own field.
func (m *Manager) loadExtras(ctx context.Context, gen uint64) {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"tool list load", func(ctx context.Context) error {
			tools, err := m.client.ListTools(ctx)
			if err != nil {
				return err
			}
			m.apply(ctx, gen, func(s *engine.Snapshot) bool {
				s.Tools = tools
				return true
			})
			return nil
		}},
		{"version load", func(ctx context.Context) error {
			version, err := m.client.Version(ctx)
			if err != nil {
				return err
			}
			m.apply(ctx, gen, func(s *engine.Snapshot) bool {
				s.Version = version
				return true
			})
			return nil
		}},
		{"system info load", func(ctx context.Context) error {
			info, err := m.client.SystemInfo(ctx)
			if err != nil {
				return err
			}
			m.apply(ctx, gen, func(s *engine.Snapshot) bool {
				s.System = info
				return true
			})
			return nil
		}},
		{"browser status load", func(ctx context.Context) error {
			status, err := m.client.BrowserStatus(ctx)
			if err != nil {
				return err
			}
			m.apply(ctx, gen, func(s *engine.Snapshot) bool {
				s.Browser = status
				return true
			})
			return nil
		}},
		{"realtime channel open", func(ctx context.Context) error {
			if err := m.client.OpenChannel(ctx); err != nil {
				return err
			}
			m.apply(ctx, gen, func(s *engine.Snapshot) bool {
				s.ChannelUp = true
				return true
			})
			return nil
		}},
		{"settings sync", func(ctx context.Context) error {
			if m.settings == nil {
				return nil
			}
			_, err := m.settings.FullSync(ctx)
			return err
		}},
		{"cloud registration", m.registerCloud},
	}

	var wg sync.WaitGroup
	for _, step := range steps {
		wg.Add(1)
		go func(name string, run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				log.Printf("[Lifecycle] %s failed: %v", name, err)
			}
		}(step.name, step.run)
	}
	wg.Wait()
}

// registerCloud hands the stored cloud session to the engine so it can talk
// to the cloud on our behalf. Not being signed in is a normal state.
func (m *Manager) registerCloud(ctx context.Context) error {
	creds, err := m.creds()
	if err != nil {
		return err
	}
	if creds == nil || creds.Token == "" || creds.UserID == "" {
		return nil
	}
	result, err := m.client.ConfigureCloud(ctx, creds.Token, creds.UserID)
	if err != nil {
		return err
	}
	if result.Configured {
		log.Printf("[Lifecycle] Cloud session configured (instance %s)", result.InstanceID)
	}
	return nil
}
