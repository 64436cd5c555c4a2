package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/aimatrx/matrx/internal/config"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/supervisor"
)

// installEngineScript points the supervisor at an executable stand-in that
// blocks until stopped.
func installEngineScript(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine stand-in is a shell script")
	}
	path := filepath.Join(t.TempDir(), "matrx-engine")
	script := "#!/bin/sh\nexec sleep 300\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write engine script: %v", err)
	}
	t.Setenv(supervisor.EnvEngineBin, path)
}

func TestEngineStartUnmanaged(t *testing.T) {
	isolateHome(t)
	engineGone(t)

	cmd := newEngineCommand()
	cmd.SetArgs([]string{"start"})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected start to fail without a configured binary")
	}
	if !errors.Is(err, engine.ErrUnmanaged) {
		t.Fatalf("expected ErrUnmanaged, got %v", err)
	}
}

func TestEngineRestartUnmanaged(t *testing.T) {
	isolateHome(t)
	engineGone(t)

	cmd := newEngineCommand()
	cmd.SetArgs([]string{"restart"})
	if err := cmd.Execute(); !errors.Is(err, engine.ErrUnmanaged) {
		t.Fatalf("expected ErrUnmanaged, got %v", err)
	}
}

func TestEngineStartAndStopManaged(t *testing.T) {
	isolateHome(t)
	installEngineScript(t)
	newCLIEngine(t, "1.0.0", nil)

	// Whatever happens below, do not leak the stand-in process.
	t.Cleanup(func() {
		sup := supervisor.New(config.GetPaths())
		_ = sup.Stop(context.Background())
	})

	startCmd := newEngineCommand()
	output := captureStdout(t, func() {
		startCmd.SetArgs([]string{"start"})
		if err := startCmd.Execute(); err != nil {
			t.Errorf("engine start failed: %v", err)
		}
	})
	if !strings.Contains(output, "Engine running at ") {
		t.Errorf("missing start confirmation, got:\n%s", output)
	}

	lock := config.GetPaths().EngineLock
	if _, err := os.Stat(lock); err != nil {
		t.Fatalf("pidfile missing after start: %v", err)
	}

	// The fake engine has no shutdown endpoint, so stop must fall back to
	// the process supervisor.
	stopCmd := newEngineCommand()
	output = captureStdout(t, func() {
		stopCmd.SetArgs([]string{"stop"})
		if err := stopCmd.Execute(); err != nil {
			t.Errorf("engine stop failed: %v", err)
		}
	})
	if !strings.Contains(output, "Engine stopped") {
		t.Errorf("missing stop confirmation, got:\n%s", output)
	}
	if _, err := os.Stat(lock); !os.IsNotExist(err) {
		t.Fatalf("pidfile should be removed after stop, stat err = %v", err)
	}
}

func TestEngineStopPrefersAPIShutdown(t *testing.T) {
	isolateHome(t)

	shutdownCalled := false
	newCLIEngine(t, "1.0.0", map[string]http.HandlerFunc{
		"/system/shutdown": func(w http.ResponseWriter, _ *http.Request) {
			shutdownCalled = true
			w.WriteHeader(http.StatusOK)
		},
	})

	cmd := newEngineCommand()
	output := captureStdout(t, func() {
		cmd.SetArgs([]string{"stop"})
		if err := cmd.Execute(); err != nil {
			t.Errorf("engine stop failed: %v", err)
		}
	})

	if !shutdownCalled {
		t.Error("expected stop to use the API shutdown endpoint")
	}
	if !strings.Contains(output, "Engine shutdown requested") {
		t.Errorf("missing shutdown confirmation, got:\n%s", output)
	}
}

func TestEngineStopUnmanagedWithoutAPI(t *testing.T) {
	isolateHome(t)
	engineGone(t)

	cmd := newEngineCommand()
	cmd.SetArgs([]string{"stop"})
	if err := cmd.Execute(); !errors.Is(err, engine.ErrUnmanaged) {
		t.Fatalf("expected ErrUnmanaged, got %v", err)
	}
}

func TestEngineAutostartToggle(t *testing.T) {
	isolateHome(t)
	installEngineScript(t)

	onCmd := newEngineCommand()
	captureStdout(t, func() {
		onCmd.SetArgs([]string{"autostart", "on"})
		if err := onCmd.Execute(); err != nil {
			t.Errorf("autostart on failed: %v", err)
		}
	})

	showCmd := newEngineCommand()
	output := captureStdout(t, func() {
		showCmd.SetArgs([]string{"autostart"})
		if err := showCmd.Execute(); err != nil {
			t.Errorf("autostart show failed: %v", err)
		}
	})
	if !strings.Contains(output, "Autostart: on") {
		t.Errorf("expected autostart on, got:\n%s", output)
	}

	offCmd := newEngineCommand()
	captureStdout(t, func() {
		offCmd.SetArgs([]string{"autostart", "off"})
		if err := offCmd.Execute(); err != nil {
			t.Errorf("autostart off failed: %v", err)
		}
	})
	if supervisor.New(config.GetPaths()).IsAutostartEnabled() {
		t.Error("autostart marker should be cleared")
	}

	badCmd := newEngineCommand()
	badCmd.SetArgs([]string{"autostart", "maybe"})
	if err := badCmd.Execute(); err == nil {
		t.Error("expected error for invalid autostart state")
	}
}

func TestEngineLogsTailsCleanOutput(t *testing.T) {
	isolateHome(t)

	paths, err := config.EnsureDirs()
	if err != nil {
		t.Fatalf("prepare home: %v", err)
	}
	content := "INFO:     Started server process [4242]\n" +
		"\x1b[32mINFO\x1b[0m:     Uvicorn running on http://127.0.0.1:22140\n" +
		"\x1b[31mERROR\x1b[0m:    browser session lost\n"
	if err := os.WriteFile(paths.EngineLog, []byte(content), 0o600); err != nil {
		t.Fatalf("write engine log: %v", err)
	}

	cmd := newEngineCommand()
	output := captureStdout(t, func() {
		cmd.SetArgs([]string{"logs", "-n", "2"})
		if err := cmd.Execute(); err != nil {
			t.Errorf("engine logs failed: %v", err)
		}
	})

	if strings.Contains(output, "Started server process") {
		t.Errorf("expected only the last two lines, got:\n%s", output)
	}
	if !strings.Contains(output, "INFO:     Uvicorn running on http://127.0.0.1:22140") {
		t.Errorf("missing second line, got:\n%s", output)
	}
	if !strings.Contains(output, "ERROR:    browser session lost") {
		t.Errorf("missing last line, got:\n%s", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("escape sequences should be stripped, got:\n%s", output)
	}
}

func TestEngineLogsWithoutCapture(t *testing.T) {
	isolateHome(t)

	cmd := newEngineCommand()
	output := captureStdout(t, func() {
		cmd.SetArgs([]string{"logs"})
		if err := cmd.Execute(); err != nil {
			t.Errorf("engine logs failed: %v", err)
		}
	})
	if !strings.Contains(output, "No engine output captured yet") {
		t.Errorf("expected empty-log notice, got:\n%s", output)
	}
}
