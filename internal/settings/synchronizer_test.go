package settings

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/eventbus"
)

type stubClient struct {
	updates    []engine.EngineSettings
	updateErr  error
	started    []int
	startErr   error
	stops      int
	stopErr    error
	syncResult *engine.SyncResult
	syncErr    error
	pushResult *engine.SyncResult
	pushErr    error
	pulls      int
	pullResult *engine.SyncResult
	pullErr    error
}

func (c *stubClient) UpdateSettings(_ context.Context, s engine.EngineSettings) error {
	c.updates = append(c.updates, s)
	return c.updateErr
}

func (c *stubClient) StartProxy(_ context.Context, port int) (*engine.ProxyStatus, error) {
	c.started = append(c.started, port)
	if c.startErr != nil {
		return nil, c.startErr
	}
	return &engine.ProxyStatus{Running: true, Port: port}, nil
}

func (c *stubClient) StopProxy(context.Context) error {
	c.stops++
	return c.stopErr
}

func (c *stubClient) CloudSync(context.Context) (*engine.SyncResult, error) {
	if c.syncErr != nil {
		return nil, c.syncErr
	}
	return c.syncResult, nil
}

func (c *stubClient) CloudPush(context.Context) (*engine.SyncResult, error) {
	if c.pushErr != nil {
		return nil, c.pushErr
	}
	return c.pushResult, nil
}

func (c *stubClient) CloudPull(context.Context) (*engine.SyncResult, error) {
	c.pulls++
	if c.pullErr != nil {
		return nil, c.pullErr
	}
	return c.pullResult, nil
}

type stubProcess struct {
	closeBehavior []bool
	autostart     []bool
	err           error
}

func (p *stubProcess) SetCloseBehavior(minimize bool) error {
	p.closeBehavior = append(p.closeBehavior, minimize)
	return p.err
}

func (p *stubProcess) EnableAutostart() error {
	p.autostart = append(p.autostart, true)
	return p.err
}

func (p *stubProcess) DisableAutostart() error {
	p.autostart = append(p.autostart, false)
	return p.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{DBPath: filepath.Join(t.TempDir(), "settings.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSynchronizer(t *testing.T, st *store.Store, client *stubClient, proc *stubProcess) *Synchronizer {
	t.Helper()
	sync, err := New(Options{Store: st, Client: client, Process: proc})
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	return sync
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	if _, err := New(Options{Client: &stubClient{}, Process: &stubProcess{}}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New(Options{Store: st, Process: &stubProcess{}}); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := New(Options{Store: st, Client: &stubClient{}}); err == nil {
		t.Fatal("expected error without process control")
	}
}

func TestLoadFirstRunReturnsDefaults(t *testing.T) {
	t.Parallel()

	sync := newTestSynchronizer(t, newTestStore(t), &stubClient{}, &stubProcess{})
	got, err := sync.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("first load should be defaults, got %+v", got)
	}
}

func TestLoadMergesPersistedOverDefaults(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	if err := st.SaveDocument(ctx, `{"theme":"light","proxyPort":9090}`); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	sync := newTestSynchronizer(t, st, &stubClient{}, &stubProcess{})
	got, err := sync.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Theme != "light" || got.ProxyPort != 9090 {
		t.Fatalf("persisted keys not applied: %+v", got)
	}
	if got.ScrapeDelay != 1.0 || !got.MinimizeToTray {
		t.Fatalf("missing keys should keep defaults: %+v", got)
	}
}

func TestLoadCorruptDocumentFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	if err := st.SaveDocument(ctx, `{"theme": not-json`); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	sync := newTestSynchronizer(t, st, &stubClient{}, &stubProcess{})
	got, err := sync.Load(ctx)
	if err != nil {
		t.Fatalf("corrupt document must not be fatal: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("corrupt document should yield defaults, got %+v", got)
	}
}

func TestSavePersistsFullDocument(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	sync := newTestSynchronizer(t, st, &stubClient{}, &stubProcess{})
	ctx := context.Background()

	if _, err := sync.Save(ctx, KeyTheme, "light"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh synchronizer over the same store must observe the change.
	reread := newTestSynchronizer(t, st, &stubClient{}, &stubProcess{})
	got, err := reread.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Theme != "light" {
		t.Fatalf("saved value lost across reload: %+v", got)
	}
	if got.ProxyPort != Defaults().ProxyPort {
		t.Fatalf("unrelated keys must survive a single-key save: %+v", got)
	}
}

func TestSaveUnknownKeyRejected(t *testing.T) {
	t.Parallel()

	sync := newTestSynchronizer(t, newTestStore(t), &stubClient{}, &stubProcess{})
	if _, err := sync.Save(context.Background(), "bogus", true); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestSaveProxyToggleStopsProxy(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	sync := newTestSynchronizer(t, newTestStore(t), client, &stubProcess{})

	if _, err := sync.Save(context.Background(), KeyProxyEnabled, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if client.stops != 1 {
		t.Fatalf("expected one StopProxy call, got %d", client.stops)
	}
	if len(client.started) != 0 {
		t.Fatalf("disable must not start the proxy: %v", client.started)
	}
}

func TestSaveProxyToggleStartsProxyOnConfiguredPort(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	if err := st.SaveDocument(context.Background(), `{"proxyEnabled":false,"proxyPort":9090}`); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	client := &stubClient{}
	sync := newTestSynchronizer(t, st, client, &stubProcess{})

	if _, err := sync.Save(context.Background(), KeyProxyEnabled, true); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !reflect.DeepEqual(client.started, []int{9090}) {
		t.Fatalf("expected proxy start on 9090, got %v", client.started)
	}
}

// A failed propagation must leave the persisted value standing with no
// automatic retry.
func TestSavePropagationFailureKeepsLocalValue(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	client := &stubClient{stopErr: errors.New("engine offline")}
	sync := newTestSynchronizer(t, st, client, &stubProcess{})
	ctx := context.Background()

	updated, err := sync.Save(ctx, KeyProxyEnabled, false)
	if err == nil {
		t.Fatal("expected propagation error")
	}
	var propErr *PropagationError
	if !errors.As(err, &propErr) {
		t.Fatalf("expected PropagationError, got %T: %v", err, err)
	}
	if propErr.Key != KeyProxyEnabled {
		t.Fatalf("PropagationError.Key = %s", propErr.Key)
	}
	if updated.ProxyEnabled {
		t.Fatal("returned record should carry the saved value")
	}

	reread := newTestSynchronizer(t, st, &stubClient{}, &stubProcess{})
	got, loadErr := reread.Load(ctx)
	if loadErr != nil {
		t.Fatalf("reload: %v", loadErr)
	}
	if got.ProxyEnabled {
		t.Fatal("local value must not roll back on propagation failure")
	}
	if client.stops != 1 {
		t.Fatalf("expected exactly one propagation attempt, got %d", client.stops)
	}
}

func TestSaveScrapeDelaySendsFullEnginePair(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	sync := newTestSynchronizer(t, newTestStore(t), client, &stubProcess{})

	if _, err := sync.Save(context.Background(), KeyScrapeDelay, 2.5); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := []engine.EngineSettings{{HeadlessScraping: true, ScrapeDelay: 2.5}}
	if !reflect.DeepEqual(client.updates, want) {
		t.Fatalf("engine update = %+v, want %+v", client.updates, want)
	}
}

func TestSaveProxyPortRestartsRunningProxy(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	sync := newTestSynchronizer(t, newTestStore(t), client, &stubProcess{})

	if _, err := sync.Save(context.Background(), KeyProxyPort, 9191); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if client.stops != 1 || !reflect.DeepEqual(client.started, []int{9191}) {
		t.Fatalf("expected stop then start on 9191, got stops=%d started=%v", client.stops, client.started)
	}
}

func TestSaveProxyPortWhileDisabledSkipsPropagation(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	if err := st.SaveDocument(context.Background(), `{"proxyEnabled":false}`); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	client := &stubClient{}
	sync := newTestSynchronizer(t, st, client, &stubProcess{})

	if _, err := sync.Save(context.Background(), KeyProxyPort, 9191); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if client.stops != 0 || len(client.started) != 0 {
		t.Fatalf("disabled proxy must not be touched, got stops=%d started=%v", client.stops, client.started)
	}
}

func TestSaveLaunchOnStartupDrivesAutostart(t *testing.T) {
	t.Parallel()

	proc := &stubProcess{}
	sync := newTestSynchronizer(t, newTestStore(t), &stubClient{}, proc)
	ctx := context.Background()

	if _, err := sync.Save(ctx, KeyLaunchOnStartup, true); err != nil {
		t.Fatalf("Save enable: %v", err)
	}
	if _, err := sync.Save(ctx, KeyLaunchOnStartup, false); err != nil {
		t.Fatalf("Save disable: %v", err)
	}
	if !reflect.DeepEqual(proc.autostart, []bool{true, false}) {
		t.Fatalf("autostart calls = %v", proc.autostart)
	}
}

func TestSaveMinimizeToTrayRecordsCloseBehavior(t *testing.T) {
	t.Parallel()

	proc := &stubProcess{}
	sync := newTestSynchronizer(t, newTestStore(t), &stubClient{}, proc)

	if _, err := sync.Save(context.Background(), KeyMinimizeToTray, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !reflect.DeepEqual(proc.closeBehavior, []bool{false}) {
		t.Fatalf("close behavior calls = %v", proc.closeBehavior)
	}
}

func TestPushToEngineSendsBothFields(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	if err := st.SaveDocument(context.Background(), `{"headlessScraping":false,"scrapeDelay":0.25}`); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	client := &stubClient{}
	sync := newTestSynchronizer(t, st, client, &stubProcess{})

	if err := sync.PushToEngine(context.Background()); err != nil {
		t.Fatalf("PushToEngine: %v", err)
	}
	want := []engine.EngineSettings{{HeadlessScraping: false, ScrapeDelay: 0.25}}
	if !reflect.DeepEqual(client.updates, want) {
		t.Fatalf("engine update = %+v, want %+v", client.updates, want)
	}
}

func TestFullSyncAdoptsPulledRecord(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	client := &stubClient{
		syncResult: &engine.SyncResult{
			Status: "pulled",
			Reason: "cloud_newer",
			Settings: &engine.CloudRecord{
				Theme:       ptr("light"),
				ScrapeDelay: ptr(0.5),
			},
		},
	}
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)
	sub := eventbus.SubscribeTo(bus, eventbus.Cloud.Sync)
	t.Cleanup(sub.Close)

	sync, err := New(Options{Store: st, Client: client, Process: &stubProcess{}, Bus: bus})
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	ctx := context.Background()

	result, err := sync.FullSync(ctx)
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if result.Status != "pulled" {
		t.Fatalf("result status = %s", result.Status)
	}

	got, err := sync.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Theme != "light" || got.ScrapeDelay != 0.5 {
		t.Fatalf("pulled record not adopted: %+v", got)
	}
	if !got.ProxyEnabled {
		t.Fatalf("absent cloud fields must keep local values: %+v", got)
	}

	// scrapeDelay changed, so the engine pair is re-pushed with the merged
	// value (after the initial pre-sync push).
	last := client.updates[len(client.updates)-1]
	if last.ScrapeDelay != 0.5 || !last.HeadlessScraping {
		t.Fatalf("merged value not propagated to engine: %+v", last)
	}

	select {
	case env := <-sub.C():
		if env.Payload.Status != "pulled" {
			t.Fatalf("sync event status = %s", env.Payload.Status)
		}
		if !reflect.DeepEqual(env.Payload.ChangedKeys, []string{KeyScrapeDelay, KeyTheme}) {
			t.Fatalf("sync event changed keys = %v", env.Payload.ChangedKeys)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync event")
	}
}

func TestFullSyncInSyncLeavesLocalUntouched(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	client := &stubClient{
		syncResult: &engine.SyncResult{Status: "in_sync", Reason: "timestamps_match"},
	}
	sync := newTestSynchronizer(t, st, client, &stubProcess{})
	ctx := context.Background()

	result, err := sync.FullSync(ctx)
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if result.Status != "in_sync" {
		t.Fatalf("result status = %s", result.Status)
	}
	got, err := sync.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("in_sync must not modify local settings: %+v", got)
	}
}

func TestFullSyncEngineUnreachable(t *testing.T) {
	t.Parallel()

	client := &stubClient{syncErr: errors.New("connection refused")}
	sync := newTestSynchronizer(t, newTestStore(t), client, &stubProcess{})

	if _, err := sync.FullSync(context.Background()); err == nil {
		t.Fatal("expected error when cloud sync call fails")
	}
}

func TestFullSyncContinuesWhenEnginePushFails(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		updateErr:  errors.New("engine busy"),
		syncResult: &engine.SyncResult{Status: "in_sync", Reason: "timestamps_match"},
	}
	sync := newTestSynchronizer(t, newTestStore(t), client, &stubProcess{})

	result, err := sync.FullSync(context.Background())
	if err != nil {
		t.Fatalf("push failure must not abort the sync: %v", err)
	}
	if result.Status != "in_sync" {
		t.Fatalf("result status = %s", result.Status)
	}
}

func TestPushSyncLeavesLocalUntouched(t *testing.T) {
	t.Parallel()

	// The push verdict echoes a record; a push must never adopt it.
	client := &stubClient{
		pushResult: &engine.SyncResult{
			Status:   "pushed",
			Reason:   "forced",
			Settings: &engine.CloudRecord{Theme: ptr("light")},
		},
	}
	sync := newTestSynchronizer(t, newTestStore(t), client, &stubProcess{})
	ctx := context.Background()

	result, err := sync.PushSync(ctx)
	if err != nil {
		t.Fatalf("PushSync: %v", err)
	}
	if result.Status != "pushed" {
		t.Fatalf("result status = %s", result.Status)
	}
	if len(client.updates) != 1 {
		t.Fatalf("expected one engine push before the cloud push, got %d", len(client.updates))
	}

	got, err := sync.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Theme != Defaults().Theme {
		t.Fatalf("push adopted the echoed record: %+v", got)
	}
}

func TestPullSyncAdoptsRecordWithoutPushing(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		pullResult: &engine.SyncResult{
			Status:   "pulled",
			Reason:   "forced",
			Settings: &engine.CloudRecord{Theme: ptr("light")},
		},
	}
	sync := newTestSynchronizer(t, newTestStore(t), client, &stubProcess{})
	ctx := context.Background()

	result, err := sync.PullSync(ctx)
	if err != nil {
		t.Fatalf("PullSync: %v", err)
	}
	if result.Status != "pulled" || client.pulls != 1 {
		t.Fatalf("result status = %s, pulls = %d", result.Status, client.pulls)
	}

	got, err := sync.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Theme != "light" {
		t.Fatalf("pulled record not adopted: %+v", got)
	}
	// Theme propagates nowhere and a pull sends nothing up front, so the
	// engine pair was never touched.
	if len(client.updates) != 0 {
		t.Fatalf("pull must not push settings to the engine, got %v", client.updates)
	}
}
