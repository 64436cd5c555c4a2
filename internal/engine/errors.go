package engine

import (
	"errors"
	"fmt"
)

// ErrEngineNotFound indicates discovery exhausted every candidate endpoint
// without finding a live engine. Fatal to an initialization sequence.
var ErrEngineNotFound = errors.New("no engine found on any candidate endpoint")

// ErrUnmanaged indicates an explicit start or stop was requested for an
// engine process that is not under this instance's control.
var ErrUnmanaged = errors.New("engine process is not managed by this instance")

// ProcessStartError wraps a failed engine launch. Fatal to an initialization
// sequence.
type ProcessStartError struct {
	Err error
}

func (e *ProcessStartError) Error() string {
	return fmt.Sprintf("engine process start failed: %v", e.Err)
}

func (e *ProcessStartError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err aborts an initialization sequence (as opposed
// to the per-feature and transient errors the sequence tolerates).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var startErr *ProcessStartError
	return errors.Is(err, ErrEngineNotFound) || errors.As(err, &startErr)
}
