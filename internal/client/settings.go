package client

import (
	"context"
	"fmt"

	"github.com/aimatrx/matrx/internal/engine"
)

// GetSettings fetches the engine-owned settings record.
func (c *Client) GetSettings(ctx context.Context) (*engine.EngineSettings, error) {
	var settings engine.EngineSettings
	if err := c.getJSON(ctx, "/settings", &settings); err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &settings, nil
}

// UpdateSettings replaces the engine-owned settings record. The engine
// applies the full object, so callers must send every field.
func (c *Client) UpdateSettings(ctx context.Context, settings engine.EngineSettings) error {
	if err := c.putJSON(ctx, "/settings", settings, nil); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
