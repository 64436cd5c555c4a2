// Package client implements the HTTP and WebSocket transport to a
// running engine. It owns the resolved endpoint and the realtime
// channel; connection orchestration lives in the lifecycle package.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/eventbus"
)

const (
	defaultHTTPTimeout        = 10 * time.Second
	websocketHandshakeTimeout = 10 * time.Second
)

// ErrNoEndpoint indicates no engine endpoint has been resolved yet.
var ErrNoEndpoint = errors.New("client: no engine endpoint resolved")

// TokenSource supplies a bearer token immediately before each outgoing
// call. Implementations return "" when no session exists; they must not
// block for long since they run on every request.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a plain function to the TokenSource interface.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string {
	if f == nil {
		return ""
	}
	return f()
}

// Client communicates with the engine using HTTP and WebSocket transports.
// The endpoint is mutable: it is set once discovery resolves an address and
// replaced on refresh. A nil bus disables realtime event publication.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	bus        *eventbus.Bus

	endpointMu sync.RWMutex
	baseURL    string

	tokenMu sync.RWMutex
	tokens  TokenSource

	chanMu   sync.Mutex
	wsConn   *websocket.Conn
	wsClosed bool

	wsWriteMu sync.Mutex
}

// New constructs a client with no endpoint resolved yet. Events received
// on the realtime channel are republished on bus, which may be nil.
func New(bus *eventbus.Bus) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  websocketHandshakeTimeout,
			EnableCompression: true,
		},
		bus: bus,
	}
}

// SetEndpoint stores the resolved engine base URL. Idempotent; the last
// writer wins.
func (c *Client) SetEndpoint(baseURL string) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	c.endpointMu.Lock()
	c.baseURL = trimmed
	c.endpointMu.Unlock()
}

// Endpoint returns the resolved engine base URL, or "" when unresolved.
func (c *Client) Endpoint() string {
	c.endpointMu.RLock()
	defer c.endpointMu.RUnlock()
	return c.baseURL
}

// SetTokenSource registers the credential supplier consulted before every
// outgoing call. Idempotent; the last writer wins.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokenMu.Lock()
	c.tokens = ts
	c.tokenMu.Unlock()
}

// Close tears down the realtime channel, if open.
func (c *Client) Close() error {
	return c.CloseChannel()
}

// Ping performs the minimal-cost liveness check against the engine root
// endpoint. It is cheap enough to call every health tick.
func (c *Client) Ping(ctx context.Context) error {
	var reply engine.ProbeReply
	if err := c.getJSON(ctx, "/", &reply); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if reply.Message != engine.ProbeMessage {
		return fmt.Errorf("ping: unexpected response %q", reply.Message)
	}
	return nil
}

// Version fetches the engine build version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var info engine.VersionInfo
	if err := c.getJSON(ctx, "/system/version", &info); err != nil {
		return "", fmt.Errorf("engine version: %w", err)
	}
	return info.Version, nil
}

// SystemInfo fetches the engine host description.
func (c *Client) SystemInfo(ctx context.Context) (*engine.SystemInfo, error) {
	var info engine.SystemInfo
	if err := c.getJSON(ctx, "/system/info", &info); err != nil {
		return nil, fmt.Errorf("system info: %w", err)
	}
	return &info, nil
}

// Shutdown requests a graceful engine shutdown via the HTTP API.
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.postJSON(ctx, "/system/shutdown", nil, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusNotImplemented {
			return fmt.Errorf("shutdown engine: %w: %w", ErrShutdownUnavailable, err)
		}
	}
	return fmt.Errorf("shutdown engine: %w", err)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) putJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	base := c.Endpoint()
	if base == "" {
		return ErrNoEndpoint
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body *bytes.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// addAuth asks the registered token source for a credential and attaches
// it when present. Tokens are never cached on the client itself.
func (c *Client) addAuth(req *http.Request) {
	c.tokenMu.RLock()
	ts := c.tokens
	c.tokenMu.RUnlock()
	if ts == nil {
		return
	}
	if token := strings.TrimSpace(ts.Token()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
