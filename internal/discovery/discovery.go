// Package discovery locates a running engine among a small set of
// candidate endpoints. Probing is stateless: every call scans the
// candidate list from scratch.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/validate"
)

// probeTimeout bounds each candidate attempt so a dead port cannot
// stall the whole scan.
const probeTimeout = 2 * time.Second

// EnvEngineURL overrides the built-in candidate list when set.
const EnvEngineURL = "MATRX_ENGINE_URL"

// Candidates returns the endpoints to probe, in preference order. A
// malformed override is logged and ignored rather than poisoning the scan.
func Candidates() []string {
	if override := strings.TrimSpace(os.Getenv(EnvEngineURL)); override != "" {
		base := normalizeBase(override)
		if err := validate.EngineURL(base); err != nil {
			log.Printf("[Discovery] Ignoring %s: %v", EnvEngineURL, err)
		} else {
			return []string{base}
		}
	}
	return []string{
		fmt.Sprintf("http://127.0.0.1:%d", engine.PreferredPort),
		fmt.Sprintf("http://127.0.0.1:%d", engine.LegacyPort),
	}
}

// Probe attempts a liveness check against each candidate in order and
// returns the first endpoint that answers affirmatively. When the list
// is exhausted it returns engine.ErrEngineNotFound.
func Probe(ctx context.Context, candidates []string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	httpClient := &http.Client{Timeout: probeTimeout}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if probeOne(ctx, httpClient, candidate) {
			return candidate, nil
		}
	}
	return "", engine.ErrEngineNotFound
}

func probeOne(ctx context.Context, httpClient *http.Client, base string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
	if err != nil {
		return false
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var reply engine.ProbeReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return false
	}
	return reply.Message == engine.ProbeMessage
}

func normalizeBase(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return trimmed
}
