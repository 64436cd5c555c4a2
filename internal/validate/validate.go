// Package validate checks externally-supplied configuration values before
// the rest of the code acts on them.
package validate

import (
	"fmt"
	"net/url"
)

// EngineURL ensures raw is an absolute http or https URL with a host. The
// engine speaks plain HTTP; the websocket scheme is derived, never supplied.
func EngineURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		// OK
	case "":
		return fmt.Errorf("URL missing scheme: %s", raw)
	default:
		return fmt.Errorf("URL scheme %q not supported (use http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL missing host: %s", raw)
	}
	return nil
}
