// Package settings owns the local application settings record: a fixed key
// set with stable defaults, persisted as a single document, and mapped
// field-by-field to the snake_case cloud encoding exchanged through the
// engine's cloud sync.
package settings

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aimatrx/matrx/internal/engine"
)

// Settings is the local (UI-facing) shape of the application settings
// record. The persisted document and the CLI both use these keys.
type Settings struct {
	ProxyEnabled     bool    `json:"proxyEnabled"`
	ProxyPort        int     `json:"proxyPort"`
	HeadlessScraping bool    `json:"headlessScraping"`
	ScrapeDelay      float64 `json:"scrapeDelay"`
	Theme            string  `json:"theme"`
	LaunchOnStartup  bool    `json:"launchOnStartup"`
	MinimizeToTray   bool    `json:"minimizeToTray"`
	InstanceName     string  `json:"instanceName"`
}

// Setting keys, matching the document's JSON field names.
const (
	KeyProxyEnabled     = "proxyEnabled"
	KeyProxyPort        = "proxyPort"
	KeyHeadlessScraping = "headlessScraping"
	KeyScrapeDelay      = "scrapeDelay"
	KeyTheme            = "theme"
	KeyLaunchOnStartup  = "launchOnStartup"
	KeyMinimizeToTray   = "minimizeToTray"
	KeyInstanceName     = "instanceName"
)

// Keys lists every setting key in display order.
func Keys() []string {
	return []string{
		KeyProxyEnabled,
		KeyProxyPort,
		KeyHeadlessScraping,
		KeyScrapeDelay,
		KeyTheme,
		KeyLaunchOnStartup,
		KeyMinimizeToTray,
		KeyInstanceName,
	}
}

// ErrUnknownKey indicates a setting key outside the fixed set.
var ErrUnknownKey = errors.New("unknown setting key")

// Defaults returns the stable default record.
func Defaults() Settings {
	return Settings{
		ProxyEnabled:     true,
		ProxyPort:        22180,
		HeadlessScraping: true,
		ScrapeDelay:      1.0,
		Theme:            "dark",
		LaunchOnStartup:  false,
		MinimizeToTray:   true,
		InstanceName:     "My Computer",
	}
}

// Get returns the value of a single key.
func (s Settings) Get(key string) (any, error) {
	switch key {
	case KeyProxyEnabled:
		return s.ProxyEnabled, nil
	case KeyProxyPort:
		return s.ProxyPort, nil
	case KeyHeadlessScraping:
		return s.HeadlessScraping, nil
	case KeyScrapeDelay:
		return s.ScrapeDelay, nil
	case KeyTheme:
		return s.Theme, nil
	case KeyLaunchOnStartup:
		return s.LaunchOnStartup, nil
	case KeyMinimizeToTray:
		return s.MinimizeToTray, nil
	case KeyInstanceName:
		return s.InstanceName, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

// WithValue returns a copy of s with key set to value. The value must match
// the key's type.
func (s Settings) WithValue(key string, value any) (Settings, error) {
	out := s
	switch key {
	case KeyProxyEnabled:
		v, ok := value.(bool)
		if !ok {
			return s, typeError(key, "bool", value)
		}
		out.ProxyEnabled = v
	case KeyProxyPort:
		v, ok := value.(int)
		if !ok {
			return s, typeError(key, "int", value)
		}
		if v < 1 || v > 65535 {
			return s, fmt.Errorf("settings: %s out of range: %d", key, v)
		}
		out.ProxyPort = v
	case KeyHeadlessScraping:
		v, ok := value.(bool)
		if !ok {
			return s, typeError(key, "bool", value)
		}
		out.HeadlessScraping = v
	case KeyScrapeDelay:
		v, ok := value.(float64)
		if !ok {
			return s, typeError(key, "float", value)
		}
		if v < 0 {
			return s, fmt.Errorf("settings: %s must not be negative: %v", key, v)
		}
		out.ScrapeDelay = v
	case KeyTheme:
		v, ok := value.(string)
		if !ok {
			return s, typeError(key, "string", value)
		}
		out.Theme = v
	case KeyLaunchOnStartup:
		v, ok := value.(bool)
		if !ok {
			return s, typeError(key, "bool", value)
		}
		out.LaunchOnStartup = v
	case KeyMinimizeToTray:
		v, ok := value.(bool)
		if !ok {
			return s, typeError(key, "bool", value)
		}
		out.MinimizeToTray = v
	case KeyInstanceName:
		v, ok := value.(string)
		if !ok {
			return s, typeError(key, "string", value)
		}
		out.InstanceName = v
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return out, nil
}

// ParseValue converts raw CLI text into the typed value for key.
func ParseValue(key, raw string) (any, error) {
	switch key {
	case KeyProxyEnabled, KeyHeadlessScraping, KeyLaunchOnStartup, KeyMinimizeToTray:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("settings: %s expects true or false, got %q", key, raw)
		}
		return v, nil
	case KeyProxyPort:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("settings: %s expects a port number, got %q", key, raw)
		}
		return v, nil
	case KeyScrapeDelay:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("settings: %s expects seconds, got %q", key, raw)
		}
		return v, nil
	case KeyTheme, KeyInstanceName:
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

func typeError(key, want string, got any) error {
	return fmt.Errorf("settings: %s expects %s, got %T", key, want, got)
}

// ToCloud returns the snake_case cloud encoding of s. Every field is
// defined, so a round-trip through FromCloud is lossless.
func ToCloud(s Settings) engine.CloudRecord {
	return engine.CloudRecord{
		ProxyEnabled:     ptr(s.ProxyEnabled),
		ProxyPort:        ptr(s.ProxyPort),
		HeadlessScraping: ptr(s.HeadlessScraping),
		ScrapeDelay:      ptr(s.ScrapeDelay),
		Theme:            ptr(s.Theme),
		LaunchOnStartup:  ptr(s.LaunchOnStartup),
		MinimizeToTray:   ptr(s.MinimizeToTray),
		InstanceName:     ptr(s.InstanceName),
	}
}

// FromCloud decodes a cloud record into the local shape. Fields the record
// does not define keep their defaults.
func FromCloud(cloud engine.CloudRecord) Settings {
	return MergeCloud(Defaults(), cloud)
}

// MergeCloud overlays cloud-defined fields onto local, field by field. A
// field absent from the cloud record never clobbers the local value.
func MergeCloud(local Settings, cloud engine.CloudRecord) Settings {
	out := local
	if cloud.ProxyEnabled != nil {
		out.ProxyEnabled = *cloud.ProxyEnabled
	}
	if cloud.ProxyPort != nil {
		out.ProxyPort = *cloud.ProxyPort
	}
	if cloud.HeadlessScraping != nil {
		out.HeadlessScraping = *cloud.HeadlessScraping
	}
	if cloud.ScrapeDelay != nil {
		out.ScrapeDelay = *cloud.ScrapeDelay
	}
	if cloud.Theme != nil {
		out.Theme = *cloud.Theme
	}
	if cloud.LaunchOnStartup != nil {
		out.LaunchOnStartup = *cloud.LaunchOnStartup
	}
	if cloud.MinimizeToTray != nil {
		out.MinimizeToTray = *cloud.MinimizeToTray
	}
	if cloud.InstanceName != nil {
		out.InstanceName = *cloud.InstanceName
	}
	return out
}

// changedKeys lists the keys whose values differ between a and b, in
// display order.
func changedKeys(a, b Settings) []string {
	var keys []string
	if a.ProxyEnabled != b.ProxyEnabled {
		keys = append(keys, KeyProxyEnabled)
	}
	if a.ProxyPort != b.ProxyPort {
		keys = append(keys, KeyProxyPort)
	}
	if a.HeadlessScraping != b.HeadlessScraping {
		keys = append(keys, KeyHeadlessScraping)
	}
	if a.ScrapeDelay != b.ScrapeDelay {
		keys = append(keys, KeyScrapeDelay)
	}
	if a.Theme != b.Theme {
		keys = append(keys, KeyTheme)
	}
	if a.LaunchOnStartup != b.LaunchOnStartup {
		keys = append(keys, KeyLaunchOnStartup)
	}
	if a.MinimizeToTray != b.MinimizeToTray {
		keys = append(keys, KeyMinimizeToTray)
	}
	if a.InstanceName != b.InstanceName {
		keys = append(keys, KeyInstanceName)
	}
	return keys
}

// EngineSubset extracts the fields the engine's own settings API owns. The
// engine expects the full pair on every update.
func EngineSubset(s Settings) engine.EngineSettings {
	return engine.EngineSettings{
		HeadlessScraping: s.HeadlessScraping,
		ScrapeDelay:      s.ScrapeDelay,
	}
}

func ptr[T any](v T) *T {
	return &v
}
