package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/eventbus"
)

// EngineClient is the transport subset the synchronizer drives when
// propagating settings and reconciling with the cloud.
type EngineClient interface {
	UpdateSettings(ctx context.Context, settings engine.EngineSettings) error
	StartProxy(ctx context.Context, port int) (*engine.ProxyStatus, error)
	StopProxy(ctx context.Context) error
	CloudSync(ctx context.Context) (*engine.SyncResult, error)
	CloudPush(ctx context.Context) (*engine.SyncResult, error)
	CloudPull(ctx context.Context) (*engine.SyncResult, error)
}

// ProcessControl is the supervisor subset owning process-level effects.
type ProcessControl interface {
	SetCloseBehavior(minimizeToTray bool) error
	EnableAutostart() error
	DisableAutostart() error
}

// PropagationError reports that a saved value could not be pushed to the
// system owning its effect. The local record is already persisted; local
// state is the source of truth and the remote side catches up later.
type PropagationError struct {
	Key string
	Err error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("settings: propagate %s: %v", e.Key, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }

// Options describes the synchronizer's collaborators.
type Options struct {
	Store   *store.Store
	Client  EngineClient
	Process ProcessControl
	Bus     *eventbus.Bus // optional; nil disables change events
}

// Synchronizer reconciles the local settings document with the engine and,
// through the engine, the cloud copy.
type Synchronizer struct {
	store  *store.Store
	client EngineClient
	proc   ProcessControl
	bus    *eventbus.Bus

	mu      sync.Mutex
	current Settings
	loaded  bool
}

// New validates the collaborators and builds a synchronizer.
func New(opts Options) (*Synchronizer, error) {
	if opts.Store == nil {
		return nil, errors.New("settings: store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("settings: engine client is required")
	}
	if opts.Process == nil {
		return nil, errors.New("settings: process control is required")
	}
	return &Synchronizer{
		store:  opts.Store,
		client: opts.Client,
		proc:   opts.Process,
		bus:    opts.Bus,
	}, nil
}

// Load returns the current settings: defaults overlaid with the persisted
// document. A corrupt document is discarded in favor of defaults.
func (s *Synchronizer) Load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Synchronizer) loadLocked(ctx context.Context) (Settings, error) {
	if s.loaded {
		return s.current, nil
	}

	record := Defaults()
	document, _, err := s.store.LoadDocument(ctx)
	switch {
	case store.IsNotFound(err):
		// First run, defaults stand.
	case err != nil:
		return Settings{}, fmt.Errorf("settings: load document: %w", err)
	default:
		if err := json.Unmarshal([]byte(document), &record); err != nil {
			log.Printf("[Settings] Corrupt settings document, falling back to defaults: %v", err)
			record = Defaults()
		}
	}

	s.current = record
	s.loaded = true
	return s.current, nil
}

func (s *Synchronizer) persistLocked(ctx context.Context, record Settings) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("settings: encode document: %w", err)
	}
	if err := s.store.SaveDocument(ctx, string(document)); err != nil {
		return fmt.Errorf("settings: persist document: %w", err)
	}
	s.current = record
	s.loaded = true
	return nil
}

// Save persists the full record with key updated to value, then propagates
// that one key to whichever system owns its effect. A propagation failure
// is returned as a *PropagationError; the persisted value stands and is
// never rolled back.
func (s *Synchronizer) Save(ctx context.Context, key string, value any) (Settings, error) {
	s.mu.Lock()
	current, err := s.loadLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	updated, err := current.WithValue(key, value)
	if err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	if err := s.persistLocked(ctx, updated); err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	s.mu.Unlock()

	propErr := s.propagate(ctx, key, updated)
	s.publishChange(ctx, key, updated, eventbus.SourceCLI, propErr)
	if propErr != nil {
		log.Printf("[Settings] Saved %s but propagation failed: %v", key, propErr)
		return updated, &PropagationError{Key: key, Err: propErr}
	}
	return updated, nil
}

// PushToEngine sends the engine-owned subset. The engine expects the full
// pair; sending a partial record would reset the omitted field.
func (s *Synchronizer) PushToEngine(ctx context.Context) error {
	local, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := s.client.UpdateSettings(ctx, EngineSubset(local)); err != nil {
		return fmt.Errorf("settings: push to engine: %w", err)
	}
	return nil
}

// FullSync pushes the engine-owned subset, triggers the engine's cloud
// reconciliation and merges any pulled record into the local document.
// Changed keys are re-propagated; individual propagation failures are
// logged, not returned.
func (s *Synchronizer) FullSync(ctx context.Context) (*engine.SyncResult, error) {
	if err := s.PushToEngine(ctx); err != nil {
		// The sync verdict below still has value even when the engine push
		// fails, so keep going.
		log.Printf("[Settings] Engine push before cloud sync failed: %v", err)
	}

	result, err := s.client.CloudSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: cloud sync: %w", err)
	}

	var changed []string
	if result.Settings != nil {
		changed, err = s.adoptCloud(ctx, *result.Settings)
		if err != nil {
			return result, err
		}
	}
	s.publishSync(ctx, result, changed)
	return result, nil
}

// PushSync pushes the engine-owned subset, then asks the engine to
// force-push its record to the cloud. The local document is never modified;
// a push result's echoed settings are not adopted.
func (s *Synchronizer) PushSync(ctx context.Context) (*engine.SyncResult, error) {
	if err := s.PushToEngine(ctx); err != nil {
		log.Printf("[Settings] Engine push before cloud push failed: %v", err)
	}

	result, err := s.client.CloudPush(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: cloud push: %w", err)
	}
	s.publishSync(ctx, result, nil)
	return result, nil
}

// PullSync asks the engine to force-pull the cloud record and adopts it
// locally, the same way a bi-directional sync adopts a pull verdict.
func (s *Synchronizer) PullSync(ctx context.Context) (*engine.SyncResult, error) {
	result, err := s.client.CloudPull(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: cloud pull: %w", err)
	}

	var changed []string
	if result.Settings != nil {
		changed, err = s.adoptCloud(ctx, *result.Settings)
		if err != nil {
			return result, err
		}
	}
	s.publishSync(ctx, result, changed)
	return result, nil
}

// adoptCloud merges a pulled cloud record into the local document and
// re-runs propagation for every key the merge changed.
func (s *Synchronizer) adoptCloud(ctx context.Context, cloud engine.CloudRecord) ([]string, error) {
	s.mu.Lock()
	current, err := s.loadLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	merged := MergeCloud(current, cloud)
	if merged == current {
		s.mu.Unlock()
		return nil, nil
	}
	changed := changedKeys(current, merged)
	if err := s.persistLocked(ctx, merged); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	for _, key := range changed {
		propErr := s.propagate(ctx, key, merged)
		s.publishChange(ctx, key, merged, eventbus.SourceCloud, propErr)
		if propErr != nil {
			log.Printf("[Settings] Propagating %s after cloud merge failed: %v", key, propErr)
		}
	}
	return changed, nil
}

// propagate pushes one key's effect to its owner. Keys without an external
// owner (theme, instanceName) propagate nowhere.
func (s *Synchronizer) propagate(ctx context.Context, key string, record Settings) error {
	switch key {
	case KeyProxyEnabled:
		if record.ProxyEnabled {
			_, err := s.client.StartProxy(ctx, record.ProxyPort)
			return err
		}
		return s.client.StopProxy(ctx)
	case KeyProxyPort:
		if !record.ProxyEnabled {
			return nil
		}
		if err := s.client.StopProxy(ctx); err != nil {
			log.Printf("[Settings] Stopping proxy before port change failed: %v", err)
		}
		_, err := s.client.StartProxy(ctx, record.ProxyPort)
		return err
	case KeyHeadlessScraping, KeyScrapeDelay:
		return s.client.UpdateSettings(ctx, EngineSubset(record))
	case KeyLaunchOnStartup:
		if record.LaunchOnStartup {
			return s.proc.EnableAutostart()
		}
		return s.proc.DisableAutostart()
	case KeyMinimizeToTray:
		return s.proc.SetCloseBehavior(record.MinimizeToTray)
	default:
		return nil
	}
}

// publishChange announces a persisted change. The event's Origin names what
// triggered it (a direct edit or a cloud merge); the envelope source is
// always this component.
func (s *Synchronizer) publishChange(ctx context.Context, key string, record Settings, origin eventbus.Source, propErr error) {
	value, err := record.Get(key)
	if err != nil {
		return
	}
	event := eventbus.SettingChangedEvent{Key: key, Value: value, Origin: origin}
	if propErr != nil {
		event.PropagationError = propErr.Error()
	}
	eventbus.Publish(ctx, s.bus, eventbus.Settings.Changed, eventbus.SourceSettings, event)
}

func (s *Synchronizer) publishSync(ctx context.Context, result *engine.SyncResult, changed []string) {
	eventbus.Publish(ctx, s.bus, eventbus.Cloud.Sync, eventbus.SourceSettings, eventbus.SyncCompletedEvent{
		Status:      result.Status,
		Reason:      result.Reason,
		ChangedKeys: changed,
		SyncedAt:    time.Now().UTC(),
	})
}
