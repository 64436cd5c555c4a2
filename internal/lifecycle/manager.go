// Package lifecycle drives the manager's connection to the engine process.
// It locates or launches the engine, adopts its endpoint, loads the initial
// snapshot best-effort and keeps the connection state current through
// background health and heartbeat loops. All state lives in one Snapshot
// guarded by a mutex; every material change is published on the event bus.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aimatrx/matrx/internal/client"
	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/credentials"
	"github.com/aimatrx/matrx/internal/discovery"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/eventbus"
	"github.com/aimatrx/matrx/internal/sanitize"
	"github.com/aimatrx/matrx/internal/settings"
	"github.com/aimatrx/matrx/internal/supervisor"
)

const (
	healthInterval    = 10 * time.Second
	heartbeatInterval = 5 * time.Minute

	healthProbeTimeout = 5 * time.Second
	heartbeatTimeout   = 10 * time.Second

	// A freshly launched engine needs time to bind its port, so discovery
	// after a managed start retries until the budget runs out.
	probeBudget     = 30 * time.Second
	probeRetryDelay = time.Second

	// Failure reasons wrap transport errors that can embed whole response
	// bodies; cap what the snapshot and the journal keep.
	maxDetailBytes = 2048
)

// ProbeFunc locates a running engine and returns its base URL.
type ProbeFunc func(ctx context.Context) (string, error)

// Options configures a Manager. Client and Supervisor are required; the
// remaining fields default to the production wiring (file-backed credentials,
// loopback discovery) or are optional (Settings, Store, Bus).
type Options struct {
	Client      *client.Client
	Supervisor  supervisor.Supervisor
	Settings    *settings.Synchronizer
	Tokens      client.TokenSource
	Credentials func() (*credentials.Credentials, error)
	Probe       ProbeFunc
	Store       *store.Store
	Bus         *eventbus.Bus
}

// Manager owns the engine connection state machine.
type Manager struct {
	client   *client.Client
	sup      supervisor.Supervisor
	settings *settings.Synchronizer
	tokens   client.TokenSource
	creds    func() (*credentials.Credentials, error)
	probe    ProbeFunc
	store    *store.Store
	bus      *eventbus.Bus

	mu       sync.Mutex
	snapshot engine.Snapshot

	// guardMu protects the init guard together with the generation bump, so
	// a stale sequence can never release a guard armed by a newer one.
	guardMu    sync.Mutex
	initGuard  bool
	generation atomic.Uint64

	services eventbus.ServiceLifecycle
}

// New validates the options and returns a Manager in the Disconnected state.
func New(opts Options) (*Manager, error) {
	if opts.Client == nil {
		return nil, errors.New("lifecycle: transport client is required")
	}
	if opts.Supervisor == nil {
		return nil, errors.New("lifecycle: supervisor is required")
	}

	m := &Manager{
		client:   opts.Client,
		sup:      opts.Supervisor,
		settings: opts.Settings,
		tokens:   opts.Tokens,
		creds:    opts.Credentials,
		probe:    opts.Probe,
		store:    opts.Store,
		bus:      opts.Bus,
		snapshot: engine.Snapshot{Status: engine.StatusDisconnected},
	}
	if m.tokens == nil {
		m.tokens = client.TokenFunc(credentials.Token)
	}
	if m.creds == nil {
		m.creds = credentials.Load
	}
	if m.probe == nil {
		m.probe = func(ctx context.Context) (string, error) {
			return discovery.Probe(ctx, discovery.Candidates())
		}
	}
	return m, nil
}

// Snapshot returns a copy of the current engine view.
func (m *Manager) Snapshot() engine.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Generation returns the sequence number of the most recently accepted
// initialization.
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

// apply mutates the snapshot under the lock and publishes the result. When
// gen is non-zero the write is discarded if a newer initialization has been
// accepted since; the loops pass zero because they act on whatever state is
// current. fn may return false to abort without publishing.
func (m *Manager) apply(ctx context.Context, gen uint64, fn func(*engine.Snapshot) bool) (engine.Snapshot, bool) {
	m.mu.Lock()
	if gen != 0 && gen != m.generation.Load() {
		m.mu.Unlock()
		log.Printf("[Lifecycle] Discarding superseded write from run %d", gen)
		return engine.Snapshot{}, false
	}
	if !fn(&m.snapshot) {
		m.mu.Unlock()
		return engine.Snapshot{}, false
	}
	m.snapshot.Generation = m.generation.Load()
	snap := m.snapshot
	m.mu.Unlock()

	eventbus.Publish(ctx, m.bus, eventbus.Engine.Snapshot, eventbus.SourceLifecycle, eventbus.SnapshotChangedEvent{
		Snapshot: snap,
	})
	return snap, true
}

// transition moves the snapshot to a new status. A non-empty from restricts
// the change to snapshots currently in that status, which is how the loops
// avoid trampling an initialization in flight. A non-empty reason is recorded
// as the snapshot's error; mutate may adjust further fields in the same
// write. Reports whether the change was applied.
func (m *Manager) transition(ctx context.Context, gen uint64, from, to engine.ConnectionStatus, reason string, mutate func(*engine.Snapshot)) bool {
	reason = sanitize.TruncateUTF8(reason, maxDetailBytes)
	var prev engine.ConnectionStatus
	snap, ok := m.apply(ctx, gen, func(s *engine.Snapshot) bool {
		if from != "" && s.Status != from {
			return false
		}
		prev = s.Status
		s.Status = to
		if reason != "" {
			s.LastError = reason
		}
		if mutate != nil {
			mutate(s)
		}
		return true
	})
	if !ok {
		return false
	}

	eventbus.Publish(ctx, m.bus, eventbus.Engine.Status, eventbus.SourceLifecycle, eventbus.StatusChangedEvent{
		Previous:   prev,
		Current:    to,
		Endpoint:   snap.Endpoint,
		Reason:     reason,
		Generation: snap.Generation,
	})
	if prev != to {
		log.Printf("[Lifecycle] Status %s -> %s", prev, to)
	}
	m.journal(ctx, string(eventbus.TopicEngineStatus), fmt.Sprintf("%s -> %s", prev, to))
	return true
}

// journal appends a best-effort audit entry; failures are logged and dropped.
func (m *Manager) journal(ctx context.Context, topic, detail string) {
	if m.store == nil {
		return
	}
	if err := m.store.AppendEvent(ctx, topic, sanitize.TruncateUTF8(detail, maxDetailBytes)); err != nil {
		log.Printf("[Lifecycle] Journal write failed: %v", err)
	}
}
