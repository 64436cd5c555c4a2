//go:build windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyMonitorSignals registers signals relevant for the monitor command.
// On Windows there is no SIGHUP equivalent; only SIGINT and SIGTERM are
// registered.
func notifyMonitorSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
}

// isRefreshSignal reports whether sig asks for a connection refresh.
// Windows does not deliver SIGHUP, so this always returns false.
func isRefreshSignal(_ os.Signal) bool {
	return false
}
