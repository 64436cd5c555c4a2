package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aimatrx/matrx/internal/eventbus"
)

// channelRedialDelay spaces the single automatic reconnect attempt after
// an unexpected drop. Further recovery goes through the health loop.
const channelRedialDelay = 5 * time.Second

// OpenChannel dials the engine's realtime channel and starts reading.
// Inbound frames are republished on the event bus. Any previously open
// channel is replaced.
func (c *Client) OpenChannel(ctx context.Context) error {
	base := c.Endpoint()
	if base == "" {
		return ErrNoEndpoint
	}

	wsURL := makeWebsocketURL(base)
	if wsURL == "" {
		return fmt.Errorf("channel: cannot derive websocket URL from %q", base)
	}

	header := http.Header{}
	c.tokenMu.RLock()
	ts := c.tokens
	c.tokenMu.RUnlock()
	if ts != nil {
		if token := strings.TrimSpace(ts.Token()); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("channel dial: %w", err)
	}

	c.chanMu.Lock()
	if c.wsConn != nil {
		_ = c.wsConn.Close()
	}
	c.wsConn = conn
	c.wsClosed = false
	c.chanMu.Unlock()

	eventbus.Publish(context.Background(), c.bus, eventbus.Engine.Channel, eventbus.SourceTransport,
		eventbus.ChannelStateEvent{Up: true, Endpoint: base, Reason: "connected"})

	go c.readLoop(conn)
	return nil
}

// CloseChannel tears down the realtime channel. Safe to call when the
// channel is already closed.
func (c *Client) CloseChannel() error {
	c.chanMu.Lock()
	conn := c.wsConn
	c.wsConn = nil
	c.wsClosed = true
	c.chanMu.Unlock()

	if conn == nil {
		return nil
	}

	c.wsWriteMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	c.wsWriteMu.Unlock()

	err := conn.Close()

	eventbus.Publish(context.Background(), c.bus, eventbus.Engine.Channel, eventbus.SourceTransport,
		eventbus.ChannelStateEvent{Up: false, Endpoint: c.Endpoint(), Reason: "closed"})
	return err
}

// ChannelUp reports whether the realtime channel is currently established.
func (c *Client) ChannelUp() bool {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	return c.wsConn != nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.handleChannelClosed(conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.dispatchFrame(payload)
	}
}

// dispatchFrame republishes one inbound frame without interpreting it
// beyond extracting the type tag.
func (c *Client) dispatchFrame(payload []byte) {
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		log.Printf("[Client] Dropping undecodable channel frame: %v", err)
		return
	}
	kind, _ := frame["type"].(string)

	eventbus.Publish(context.Background(), c.bus, eventbus.Engine.Remote, eventbus.SourceTransport,
		eventbus.RemoteEvent{Type: kind, Data: frame})
}

func (c *Client) handleChannelClosed(conn *websocket.Conn, err error) {
	c.chanMu.Lock()
	if c.wsConn != conn {
		// Replaced or already torn down.
		c.chanMu.Unlock()
		return
	}
	c.wsConn = nil
	wanted := !c.wsClosed
	c.chanMu.Unlock()

	if !wanted {
		return
	}

	reason := "connection closed"
	if !isNormalClose(err) {
		reason = err.Error()
	}
	log.Printf("[Client] Realtime channel dropped: %s", reason)

	eventbus.Publish(context.Background(), c.bus, eventbus.Engine.Channel, eventbus.SourceTransport,
		eventbus.ChannelStateEvent{Up: false, Endpoint: c.Endpoint(), Reason: reason})

	// One automatic reconnect attempt per drop.
	time.Sleep(channelRedialDelay)

	c.chanMu.Lock()
	stale := c.wsClosed || c.wsConn != nil
	c.chanMu.Unlock()
	if stale {
		return
	}

	if rerr := c.OpenChannel(context.Background()); rerr != nil {
		log.Printf("[Client] Realtime channel reconnect failed: %v", rerr)
	}
}

func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	return false
}

func makeWebsocketURL(base string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
