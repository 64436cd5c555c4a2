package engine

// Wire types for the engine's HTTP API. Field names follow the engine's
// snake_case JSON convention.

// ProbeReply is the engine's response to the liveness probe GET /.
type ProbeReply struct {
	Message string `json:"message"`
}

// VersionInfo is the response of GET /system/version.
type VersionInfo struct {
	Version string `json:"version"`
}

// SystemInfo is the response of GET /system/info.
type SystemInfo struct {
	Platform       string  `json:"platform"`
	OSVersion      string  `json:"os_version"`
	Architecture   string  `json:"architecture"`
	Hostname       string  `json:"hostname"`
	Username       string  `json:"username,omitempty"`
	RuntimeVersion string  `json:"python_version,omitempty"`
	CPUModel       string  `json:"cpu_model,omitempty"`
	CPUCores       int     `json:"cpu_cores,omitempty"`
	RAMTotalGB     float64 `json:"ram_total_gb,omitempty"`
}

// EngineSettings is the engine-owned subset of the settings record,
// exchanged via GET/PUT /settings. The engine expects the full object
// on update; an omitted field would be reset to its engine default.
type EngineSettings struct {
	HeadlessScraping bool    `json:"headless_scraping"`
	ScrapeDelay      float64 `json:"scrape_delay"`
}

// ProxyStatus is the response of GET /proxy/status and POST /proxy/start.
type ProxyStatus struct {
	Running           bool    `json:"running"`
	Port              int     `json:"port"`
	ProxyURL          string  `json:"proxy_url,omitempty"`
	RequestCount      int64   `json:"request_count"`
	BytesForwarded    int64   `json:"bytes_forwarded"`
	ActiveConnections int     `json:"active_connections"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// BrowserStatus is the response of GET /tools/browser/status.
type BrowserStatus struct {
	Running     bool `json:"running"`
	Headless    bool `json:"headless"`
	PoolSize    int  `json:"pool_size"`
	ActivePages int  `json:"active_pages"`
}

// ToolResult is the response of POST /tools/invoke.
type ToolResult struct {
	Type     string         `json:"type"`
	Output   string         `json:"output"`
	Image    map[string]any `json:"image,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CloudRecord is the cloud-side settings document exchanged through the
// engine's /cloud endpoints. All value fields are pointers so an absent key
// is distinguishable from a zero value.
type CloudRecord struct {
	ProxyEnabled     *bool    `json:"proxy_enabled,omitempty"`
	ProxyPort        *int     `json:"proxy_port,omitempty"`
	HeadlessScraping *bool    `json:"headless_scraping,omitempty"`
	ScrapeDelay      *float64 `json:"scrape_delay,omitempty"`
	Theme            *string  `json:"theme,omitempty"`
	LaunchOnStartup  *bool    `json:"launch_on_startup,omitempty"`
	MinimizeToTray   *bool    `json:"minimize_to_tray,omitempty"`
	InstanceName     *string  `json:"instance_name,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

// SyncResult is the response of the engine's /cloud/sync endpoints.
// Status is one of "pushed", "pulled", "in_sync" or "error"; Settings
// carries the merged record when the sync brought data down.
type SyncResult struct {
	Status   string       `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	Settings *CloudRecord `json:"settings,omitempty"`
}

// ConfigureResult is the response of POST /cloud/configure.
type ConfigureResult struct {
	Configured bool   `json:"configured"`
	InstanceID string `json:"instance_id"`
}

// InstanceInfo is the response of GET /cloud/instance.
type InstanceInfo struct {
	InstanceID   string `json:"instance_id"`
	InstanceName string `json:"instance_name"`
	Platform     string `json:"platform,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
}
