// Package supervisor controls a locally managed engine process: launching
// the binary, tracking it through a pidfile, and stopping it with an
// escalating signal sequence. Deployments where something else owns the
// engine get an unmanaged supervisor whose process operations are all safe
// no-ops, so callers never need to branch on the environment.
package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/aimatrx/matrx/internal/config"
)

// EnvEngineBin overrides the engine binary path. When set, the supervisor
// always runs in managed mode.
const EnvEngineBin = "MATRX_ENGINE_BIN"

// bundledBinaryName is the engine binary looked up under <home>/bin when no
// explicit override is configured.
const bundledBinaryName = "matrx-engine"

// Supervisor manages the lifecycle of a local engine process. Every method
// must be safe to call in any environment; the unmanaged implementation
// turns process operations into no-ops rather than errors.
type Supervisor interface {
	// Start ensures an engine process is running. Idempotent: a live
	// supervised process makes it return nil without launching another.
	Start(ctx context.Context) error

	// Stop terminates the supervised engine process, escalating from a
	// graceful terminate to a forced kill when the grace period lapses.
	Stop(ctx context.Context) error

	// Running reports whether a supervised engine process is alive.
	Running() bool

	// Pid returns the pid of the live supervised process, or 0.
	Pid() int

	// Managed reports whether this supervisor controls the engine process.
	Managed() bool

	// SetCloseBehavior records whether a host shell should minimize to the
	// tray instead of quitting when its window closes.
	SetCloseBehavior(minimizeToTray bool) error

	// CloseBehavior returns the recorded close behavior.
	CloseBehavior() bool

	// IsAutostartEnabled reports whether the engine autostart marker is set.
	IsAutostartEnabled() bool

	// EnableAutostart arms the engine autostart marker.
	EnableAutostart() error

	// DisableAutostart clears the engine autostart marker. Clearing an
	// absent marker is not an error.
	DisableAutostart() error
}

// New selects the supervisor for the current environment: managed when an
// engine binary is configured, unmanaged otherwise.
func New(paths config.Paths) Supervisor {
	if binary := EngineBinary(); binary != "" {
		return newManaged(binary, paths)
	}
	return unmanagedSupervisor{}
}

// EngineBinary resolves the engine binary path. The environment override is
// consulted first, then the bundled location under the Matrx home. An empty
// result means no binary is configured and the environment is unmanaged.
func EngineBinary() string {
	if path := strings.TrimSpace(os.Getenv(EnvEngineBin)); path != "" {
		return config.ExpandPath(path)
	}
	bundled := filepath.Join(config.GetMatrxHome(), "bin", bundledBinaryName)
	if _, err := os.Stat(bundled); err == nil {
		return bundled
	}
	return ""
}
