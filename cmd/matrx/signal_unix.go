//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyMonitorSignals registers signals relevant for the monitor command.
// On Unix this includes SIGINT, SIGTERM, and SIGHUP (re-run the connection
// sequence).
func notifyMonitorSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
}

// isRefreshSignal reports whether sig asks for a connection refresh (SIGHUP).
func isRefreshSignal(sig os.Signal) bool {
	return sig == syscall.SIGHUP
}
