package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimatrx/matrx/internal/client"
	"github.com/aimatrx/matrx/internal/config"
	"github.com/aimatrx/matrx/internal/discovery"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/sanitize"
	"github.com/aimatrx/matrx/internal/supervisor"
)

// engineStartupBudget bounds how long `engine start` waits for the launched
// process to begin answering the liveness probe.
const engineStartupBudget = 30 * time.Second

func newEngineCommand() *cobra.Command {
	engineCmd := &cobra.Command{
		Use:   "engine",
		Short: "Control the local engine process",
	}

	startCmd := &cobra.Command{
		Use:           "start",
		Short:         "Launch the managed engine process and wait until it answers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          engineStart,
	}

	stopCmd := &cobra.Command{
		Use:           "stop",
		Short:         "Stop the engine, preferring a graceful API shutdown",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          engineStop,
	}

	restartCmd := &cobra.Command{
		Use:           "restart",
		Short:         "Stop the engine and start it again",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          engineRestart,
	}

	autostartCmd := &cobra.Command{
		Use:           "autostart [on|off]",
		Short:         "Show or set the engine autostart marker",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          engineAutostart,
	}

	logsCmd := &cobra.Command{
		Use:           "logs",
		Short:         "Show recent output captured from the managed engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          engineLogs,
	}
	logsCmd.Flags().IntP("lines", "n", 50, "Number of trailing lines to show")

	engineCmd.AddCommand(startCmd, stopCmd, restartCmd, autostartCmd, logsCmd)
	return engineCmd
}

func engineStart(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	paths, err := config.EnsureDirs()
	if err != nil {
		return out.Error("Failed to prepare the matrx home directory", err)
	}
	sup := supervisor.New(paths)
	if !sup.Managed() {
		return out.Error(
			fmt.Sprintf("No engine binary configured (set %s or install one under %s/bin)",
				supervisor.EnvEngineBin, config.GetMatrxHome()),
			engine.ErrUnmanaged)
	}

	ctx, cancel := context.WithTimeout(context.Background(), engineStartupBudget+15*time.Second)
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return out.Error("Failed to start the engine process", err)
	}

	endpoint, err := waitForEngine(ctx)
	if err != nil {
		return out.Error("Engine process started but never became reachable", err)
	}

	return out.Success(fmt.Sprintf("Engine running at %s", endpoint), map[string]any{
		"endpoint": endpoint,
		"pid":      sup.Pid(),
	})
}

func engineStop(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	paths := config.GetPaths()
	sup := supervisor.New(paths)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A reachable engine gets the polite request first; the supervisor is the
	// fallback for engines that predate the shutdown endpoint.
	if c, err := connectEngine(ctx); err == nil {
		defer c.Close()
		err = c.Shutdown(ctx)
		// Engines often exit before the response completes; a dropped
		// connection after the request counts as delivered.
		if err == nil || client.IsUnreachable(err) {
			return out.Success("Engine shutdown requested", nil)
		}
		if !errors.Is(err, client.ErrShutdownUnavailable) {
			fmt.Fprintf(os.Stderr, "API shutdown failed: %v\n", err)
		}
	}

	if !sup.Managed() {
		return out.Error("Engine is not managed by this instance and did not accept an API shutdown", engine.ErrUnmanaged)
	}
	if !sup.Running() {
		return out.Success("Engine is not running", nil)
	}
	if err := sup.Stop(ctx); err != nil {
		return out.Error("Failed to stop the engine process", err)
	}
	return out.Success("Engine stopped", nil)
}

func engineRestart(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	// Refuse up front rather than stopping an engine we cannot bring back.
	paths := config.GetPaths()
	if !supervisor.New(paths).Managed() {
		return out.Error(
			fmt.Sprintf("No engine binary configured (set %s or install one under %s/bin)",
				supervisor.EnvEngineBin, config.GetMatrxHome()),
			engine.ErrUnmanaged)
	}

	if err := engineStop(cmd, args); err != nil {
		return err
	}
	return engineStart(cmd, args)
}

func engineAutostart(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	paths, err := config.EnsureDirs()
	if err != nil {
		return out.Error("Failed to prepare the matrx home directory", err)
	}
	sup := supervisor.New(paths)

	if len(args) == 0 {
		state := "off"
		if sup.IsAutostartEnabled() {
			state = "on"
		}
		if out.jsonMode {
			return out.Print(map[string]any{"autostart": sup.IsAutostartEnabled()})
		}
		fmt.Printf("Autostart: %s\n", state)
		return nil
	}

	switch args[0] {
	case "on":
		if err := sup.EnableAutostart(); err != nil {
			return out.Error("Failed to enable autostart", err)
		}
		return out.Success("Autostart enabled", map[string]any{"autostart": true})
	case "off":
		if err := sup.DisableAutostart(); err != nil {
			return out.Error("Failed to disable autostart", err)
		}
		return out.Success("Autostart disabled", map[string]any{"autostart": false})
	default:
		return out.Error("Autostart state must be 'on' or 'off'", nil)
	}
}

func engineLogs(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	n, err := cmd.Flags().GetInt("lines")
	if err != nil || n <= 0 {
		n = 50
	}

	paths := config.GetPaths()
	lines, err := tailEngineLog(paths.EngineLog, n)
	if err != nil && !os.IsNotExist(err) {
		return out.Error("Failed to read the engine log", err)
	}
	if len(lines) == 0 {
		return out.Success("No engine output captured yet", nil)
	}

	if out.jsonMode {
		return out.Print(map[string]any{"log": paths.EngineLog, "lines": lines})
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

// tailEngineLog returns the last n lines of the capture file with terminal
// escape sequences stripped. Only the trailing chunk of the file is read, so
// a long-lived engine's log stays cheap to inspect.
func tailEngineLog(path string, n int) ([]string, error) {
	const tailReadLimit = 256 * 1024

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	offset := info.Size() - tailReadLimit
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if offset > 0 && len(lines) > 0 {
		// Seeking into the middle leaves a partial first line.
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, line := range lines {
		lines[i] = sanitize.StripControlChars(line)
	}
	return lines, nil
}

// waitForEngine polls the candidate endpoints until one answers or the
// startup budget lapses.
func waitForEngine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(engineStartupBudget)
	for {
		endpoint, err := discovery.Probe(ctx, discovery.Candidates())
		if err == nil {
			return endpoint, nil
		}
		if time.Now().After(deadline) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
