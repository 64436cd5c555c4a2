package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxErrorBody = 8 << 10

// ErrShutdownUnavailable indicates the engine does not expose the shutdown endpoint.
var ErrShutdownUnavailable = errors.New("engine shutdown endpoint unavailable")

// APIError describes a response the engine returned with a non-success
// status. Its presence distinguishes "engine reachable but call failed"
// from transport-level failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, e.Message)
}

// IsUnreachable reports whether err indicates the engine could not be
// reached at all, as opposed to an error response from a live engine.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	if strings.HasPrefix(trimmed, "{") {
		// The engine reports failures as {"detail": "..."}; tolerate the
		// {"error": "..."} shape as well.
		var payload struct {
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			if msg := strings.TrimSpace(payload.Detail); msg != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: msg}
			}
			if msg := strings.TrimSpace(payload.Error); msg != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: msg}
			}
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: trimmed}
}
