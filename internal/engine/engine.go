// Package engine defines the shared types describing a local engine process
// and the manager's view of it. The engine is a separate process speaking
// HTTP on a loopback port plus a WebSocket event stream at /ws.
package engine

// ConnectionStatus summarises the manager's relationship with the engine.
type ConnectionStatus string

const (
	StatusDiscovering  ConnectionStatus = "discovering"
	StatusStarting     ConnectionStatus = "starting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// Snapshot is the manager's current view of the engine. A copy is published
// on the event bus after every material change. Tools, System and Browser are
// loaded best-effort after a connection is established and stay zero when the
// corresponding engine call fails; writers replace them wholesale and never
// mutate them in place, so a copy may be shared freely.
type Snapshot struct {
	Status     ConnectionStatus `json:"status"`
	Endpoint   string           `json:"endpoint,omitempty"`
	Version    string           `json:"version,omitempty"`
	Tools      []string         `json:"tools,omitempty"`
	System     *SystemInfo      `json:"system,omitempty"`
	Browser    *BrowserStatus   `json:"browser,omitempty"`
	ChannelUp  bool             `json:"channel_up"`
	LastError  string           `json:"last_error,omitempty"`
	Generation uint64           `json:"generation"`
}

// Candidate ports the engine is known to listen on. The preferred port is
// probed first; the legacy port covers installations predating the move.
const (
	PreferredPort = 22140
	LegacyPort    = 8000
)

// ProbeMessage is the body of the engine's liveness reply on GET /.
const ProbeMessage = "API is working"
