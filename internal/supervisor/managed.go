package supervisor

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/aimatrx/matrx/internal/config"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/procutil"
)

const (
	// stopGracePeriod bounds how long Stop waits for a graceful exit before
	// escalating to a forced kill.
	stopGracePeriod = 5 * time.Second
	stopPoll        = 100 * time.Millisecond
)

// managedSupervisor launches and tracks an engine process. The pidfile is
// the source of truth so a process started by one invocation can be stopped
// by a later one.
type managedSupervisor struct {
	binary string
	paths  config.Paths

	mu             sync.Mutex
	cmd            *exec.Cmd
	minimizeToTray bool
}

var _ Supervisor = (*managedSupervisor)(nil)

func newManaged(binary string, paths config.Paths) *managedSupervisor {
	return &managedSupervisor{binary: binary, paths: paths}
}

func (s *managedSupervisor) Managed() bool { return true }

// Start launches the engine binary unless a supervised process is already
// alive. Launch failures are wrapped in engine.ProcessStartError so the
// caller can distinguish them from discovery failures.
func (s *managedSupervisor) Start(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pid, ok := readPIDFile(s.paths.EngineLock); ok && procutil.IsProcessAlive(pid) {
		return nil
	}

	if _, err := os.Stat(s.binary); err != nil {
		return &engine.ProcessStartError{Err: fmt.Errorf("engine binary %s: %w", s.binary, err)}
	}

	var output io.Writer = io.Discard
	logFile, err := openEngineLog(s.paths)
	if err != nil {
		log.Printf("[Supervisor] Engine output capture unavailable: %v", err)
	} else {
		output = logFile
	}

	cmd := exec.Command(s.binary)
	cmd.Stdout = output
	cmd.Stderr = output
	detachProcess(cmd)

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return &engine.ProcessStartError{Err: err}
	}

	// Reap the process when it exits so it never lingers as a zombie while
	// this supervisor is alive.
	go func() {
		_ = cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
	}()

	if err := writePIDFile(s.paths.EngineLock, cmd.Process.Pid); err != nil {
		log.Printf("[Supervisor] Failed to record engine pid: %v", err)
	}
	s.cmd = cmd
	log.Printf("[Supervisor] Engine started (pid %d)", cmd.Process.Pid)
	return nil
}

// Stop terminates the process recorded in the pidfile. A missing pidfile or
// an already-dead process counts as stopped.
func (s *managedSupervisor) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pid, ok := readPIDFile(s.paths.EngineLock)
	if !ok || !procutil.IsProcessAlive(pid) {
		removePIDFile(s.paths.EngineLock)
		return nil
	}

	if err := procutil.TerminateByPID(pid); err != nil {
		return fmt.Errorf("supervisor: terminate engine (pid %d): %w", pid, err)
	}

	deadline := time.Now().Add(stopGracePeriod)
	for time.Now().Before(deadline) {
		if !procutil.IsProcessAlive(pid) {
			removePIDFile(s.paths.EngineLock)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopPoll):
		}
	}

	log.Printf("[Supervisor] Engine (pid %d) ignored terminate, killing", pid)
	if err := procutil.KillByPID(pid); err != nil {
		return fmt.Errorf("supervisor: kill engine (pid %d): %w", pid, err)
	}
	removePIDFile(s.paths.EngineLock)
	return nil
}

func (s *managedSupervisor) Running() bool {
	pid, ok := readPIDFile(s.paths.EngineLock)
	return ok && procutil.IsProcessAlive(pid)
}

func (s *managedSupervisor) Pid() int {
	if pid, ok := readPIDFile(s.paths.EngineLock); ok && procutil.IsProcessAlive(pid) {
		return pid
	}
	return 0
}

func (s *managedSupervisor) SetCloseBehavior(minimizeToTray bool) error {
	s.mu.Lock()
	s.minimizeToTray = minimizeToTray
	s.mu.Unlock()
	return nil
}

func (s *managedSupervisor) CloseBehavior() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minimizeToTray
}

func (s *managedSupervisor) IsAutostartEnabled() bool {
	_, err := os.Stat(s.paths.Autostart)
	return err == nil
}

// EnableAutostart arms the marker consumed by login-time tooling. The marker
// records the binary it was armed for.
func (s *managedSupervisor) EnableAutostart() error {
	if err := os.MkdirAll(s.paths.Home, 0o755); err != nil {
		return fmt.Errorf("supervisor: create home directory: %w", err)
	}
	if err := os.WriteFile(s.paths.Autostart, []byte(s.binary+"\n"), 0o600); err != nil {
		return fmt.Errorf("supervisor: write autostart marker: %w", err)
	}
	return nil
}

func (s *managedSupervisor) DisableAutostart() error {
	if err := os.Remove(s.paths.Autostart); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("supervisor: remove autostart marker: %w", err)
	}
	return nil
}

// openEngineLog opens the append-mode capture file for engine output.
func openEngineLog(paths config.Paths) (*os.File, error) {
	if err := os.MkdirAll(paths.Logs, 0o755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}
	f, err := os.OpenFile(paths.EngineLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open engine log: %w", err)
	}
	return f, nil
}
