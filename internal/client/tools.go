package client

import (
	"context"
	"fmt"

	"github.com/aimatrx/matrx/internal/engine"
)

type toolInvokeRequest struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// ListTools returns the names of the tools the engine exposes.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	var result struct {
		Tools []string `json:"tools"`
	}
	if err := c.getJSON(ctx, "/tools/list", &result); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

// InvokeTool runs a single engine tool in a fresh stateless session.
func (c *Client) InvokeTool(ctx context.Context, tool string, input map[string]any) (*engine.ToolResult, error) {
	if input == nil {
		input = map[string]any{}
	}
	payload := toolInvokeRequest{Tool: tool, Input: input}

	var result engine.ToolResult
	if err := c.postJSON(ctx, "/tools/invoke", payload, &result); err != nil {
		return nil, fmt.Errorf("invoke tool %s: %w", tool, err)
	}
	return &result, nil
}

// BrowserStatus reports the state of the engine's browser automation pool.
func (c *Client) BrowserStatus(ctx context.Context) (*engine.BrowserStatus, error) {
	var status engine.BrowserStatus
	if err := c.getJSON(ctx, "/tools/browser/status", &status); err != nil {
		return nil, fmt.Errorf("browser status: %w", err)
	}
	return &status, nil
}
