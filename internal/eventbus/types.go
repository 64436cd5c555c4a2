package eventbus

import (
	"time"

	"github.com/aimatrx/matrx/internal/engine"
)

// Topic identifies a logical channel on the bus.
type Topic string

// Standard topics.
const (
	TopicEngineStatus   Topic = "engine.status"
	TopicEngineSnapshot Topic = "engine.snapshot"
	TopicEngineChannel  Topic = "engine.channel"
	TopicEngineRemote   Topic = "engine.remote"
	TopicSettingChanged Topic = "settings.changed"
	TopicCloudSync      Topic = "cloud.sync"
	TopicCloudHeartbeat Topic = "cloud.heartbeat"
)

// Source describes which component produced an event.
type Source string

const (
	SourceLifecycle  Source = "lifecycle"
	SourceTransport  Source = "transport"
	SourceSettings   Source = "settings"
	SourceSupervisor Source = "supervisor"
	SourceCloud      Source = "cloud"
	SourceCLI        Source = "cli"
	SourceUnknown    Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic     Topic
	Timestamp time.Time
	Source    Source
	Payload   any
}

// StatusChangedEvent announces a connection status transition.
type StatusChangedEvent struct {
	Previous   engine.ConnectionStatus
	Current    engine.ConnectionStatus
	Endpoint   string
	Reason     string
	Generation uint64
}

// SnapshotChangedEvent carries the full engine snapshot after any material
// change. Consumers treat it as state-replace, not a delta.
type SnapshotChangedEvent struct {
	Snapshot engine.Snapshot
}

// ChannelStateEvent reports realtime channel establishment and teardown.
type ChannelStateEvent struct {
	Up       bool
	Endpoint string
	Reason   string
}

// RemoteEvent republishes a frame received on the engine's realtime channel.
type RemoteEvent struct {
	Type string
	Data map[string]any
}

// SettingChangedEvent is emitted after a setting is persisted locally.
// PropagationError carries the error text when the key's side effect failed;
// the persisted value stands regardless.
type SettingChangedEvent struct {
	Key              string
	Value            any
	Origin           Source
	PropagationError string
}

// SyncCompletedEvent reports the outcome of a cloud settings sync. Status
// mirrors the engine's sync verdict: pushed, pulled, in_sync or error.
type SyncCompletedEvent struct {
	Status      string
	Reason      string
	ChangedKeys []string
	SyncedAt    time.Time
}

// HeartbeatEvent reports a cloud heartbeat attempt. Failures never affect
// connection status; they are informational only.
type HeartbeatEvent struct {
	OK    bool
	Error string
	At    time.Time
}

// ---------------------------------------------------------------------------
// Typed topic descriptors
// ---------------------------------------------------------------------------
// Each TopicDef binds a Topic constant to its payload type, enabling
// compile-time enforcement via Publish[T] and SubscribeTo[T].

// Engine groups engine lifecycle topic descriptors.
var Engine = struct {
	Status   TopicDef[StatusChangedEvent]
	Snapshot TopicDef[SnapshotChangedEvent]
	Channel  TopicDef[ChannelStateEvent]
	Remote   TopicDef[RemoteEvent]
}{
	Status:   NewTopicDef[StatusChangedEvent](TopicEngineStatus),
	Snapshot: NewTopicDef[SnapshotChangedEvent](TopicEngineSnapshot),
	Channel:  NewTopicDef[ChannelStateEvent](TopicEngineChannel),
	Remote:   NewTopicDef[RemoteEvent](TopicEngineRemote),
}

// Settings groups settings topic descriptors.
var Settings = struct {
	Changed TopicDef[SettingChangedEvent]
}{
	Changed: NewTopicDef[SettingChangedEvent](TopicSettingChanged),
}

// Cloud groups cloud session topic descriptors.
var Cloud = struct {
	Sync      TopicDef[SyncCompletedEvent]
	Heartbeat TopicDef[HeartbeatEvent]
}{
	Sync:      NewTopicDef[SyncCompletedEvent](TopicCloudSync),
	Heartbeat: NewTopicDef[HeartbeatEvent](TopicCloudHeartbeat),
}
