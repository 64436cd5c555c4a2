package client

import (
	"context"
	"fmt"

	"github.com/aimatrx/matrx/internal/engine"
)

type proxyStartRequest struct {
	Port int `json:"port"`
}

// ProxyStatus reports the state of the engine's local HTTP proxy.
func (c *Client) ProxyStatus(ctx context.Context) (*engine.ProxyStatus, error) {
	var status engine.ProxyStatus
	if err := c.getJSON(ctx, "/proxy/status", &status); err != nil {
		return nil, fmt.Errorf("proxy status: %w", err)
	}
	return &status, nil
}

// StartProxy asks the engine to start its local HTTP proxy. A zero port
// lets the engine pick one.
func (c *Client) StartProxy(ctx context.Context, port int) (*engine.ProxyStatus, error) {
	var status engine.ProxyStatus
	if err := c.postJSON(ctx, "/proxy/start", proxyStartRequest{Port: port}, &status); err != nil {
		return nil, fmt.Errorf("start proxy: %w", err)
	}
	return &status, nil
}

// StopProxy asks the engine to stop its local HTTP proxy.
func (c *Client) StopProxy(ctx context.Context) error {
	if err := c.postJSON(ctx, "/proxy/stop", nil, nil); err != nil {
		return fmt.Errorf("stop proxy: %w", err)
	}
	return nil
}
