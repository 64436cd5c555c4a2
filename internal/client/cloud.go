package client

import (
	"context"
	"fmt"

	"github.com/aimatrx/matrx/internal/engine"
)

type cloudConfigureRequest struct {
	JWT    string `json:"jwt"`
	UserID string `json:"user_id"`
}

// ConfigureCloud hands the session credential to the engine so it can
// register this instance and sync settings with the cloud store.
func (c *Client) ConfigureCloud(ctx context.Context, jwt, userID string) (*engine.ConfigureResult, error) {
	payload := cloudConfigureRequest{JWT: jwt, UserID: userID}

	var result engine.ConfigureResult
	if err := c.postJSON(ctx, "/cloud/configure", payload, &result); err != nil {
		return nil, fmt.Errorf("configure cloud: %w", err)
	}
	return &result, nil
}

// CloudSync triggers a bidirectional settings sync with the cloud.
func (c *Client) CloudSync(ctx context.Context) (*engine.SyncResult, error) {
	var result engine.SyncResult
	if err := c.postJSON(ctx, "/cloud/sync", nil, &result); err != nil {
		return nil, fmt.Errorf("cloud sync: %w", err)
	}
	return &result, nil
}

// CloudPush force-pushes local settings to the cloud.
func (c *Client) CloudPush(ctx context.Context) (*engine.SyncResult, error) {
	var result engine.SyncResult
	if err := c.postJSON(ctx, "/cloud/sync/push", nil, &result); err != nil {
		return nil, fmt.Errorf("cloud push: %w", err)
	}
	return &result, nil
}

// CloudPull force-pulls cloud settings down to the engine.
func (c *Client) CloudPull(ctx context.Context) (*engine.SyncResult, error) {
	var result engine.SyncResult
	if err := c.postJSON(ctx, "/cloud/sync/pull", nil, &result); err != nil {
		return nil, fmt.Errorf("cloud pull: %w", err)
	}
	return &result, nil
}

// Heartbeat updates the cloud-side last-seen timestamp for this instance.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.postJSON(ctx, "/cloud/heartbeat", nil, nil); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// InstanceInfo fetches the engine's identifying information.
func (c *Client) InstanceInfo(ctx context.Context) (*engine.InstanceInfo, error) {
	var info engine.InstanceInfo
	if err := c.getJSON(ctx, "/cloud/instance", &info); err != nil {
		return nil, fmt.Errorf("instance info: %w", err)
	}
	return &info, nil
}
