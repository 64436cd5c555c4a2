package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimatrx/matrx/internal/client"
	"github.com/aimatrx/matrx/internal/config"
	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/credentials"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/lifecycle"
	"github.com/aimatrx/matrx/internal/settings"
	"github.com/aimatrx/matrx/internal/supervisor"
)

func newRefreshCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one full connection sequence and report the result",
		Long: `Refresh runs the complete connection sequence once: discover (or launch)
the engine, adopt its endpoint, and load tools, version, system and browser
details. It is the same sequence the monitor runs at startup and on SIGHUP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRefresh,
	}
	return cmd
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	paths, err := config.EnsureDirs()
	if err != nil {
		return out.Error("Failed to prepare the matrx home directory", err)
	}

	// The sequence works without a store; it only loses endpoint persistence.
	st, err := store.Open(store.Options{DBPath: paths.SettingsDB})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: settings store unavailable: %v\n", err)
		st = nil
	} else {
		defer st.Close()
	}

	c := client.New(nil)
	defer c.Close()
	c.SetTokenSource(client.TokenFunc(credentials.Token))
	sup := supervisor.New(paths)

	opts := lifecycle.Options{
		Client:     c,
		Supervisor: sup,
		Store:      st,
	}
	if st != nil {
		sync, err := settings.New(settings.Options{Store: st, Client: c, Process: sup})
		if err != nil {
			return out.Error("Failed to build the settings synchronizer", err)
		}
		opts.Settings = sync
	}

	mgr, err := lifecycle.New(opts)
	if err != nil {
		return out.Error("Failed to build the lifecycle manager", err)
	}

	// Managed start plus the re-probe budget can take a while.
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	initErr := mgr.Initialize(ctx)
	// One-shot run: the realtime channel has no consumer once we exit.
	_ = c.CloseChannel()

	snap := mgr.Snapshot()
	if initErr != nil {
		if out.jsonMode {
			_ = out.Print(snap)
		}
		return out.Error("Connection sequence failed", initErr)
	}

	if out.jsonMode {
		return out.Print(snap)
	}
	printSnapshot(snap)
	return nil
}

func printSnapshot(snap engine.Snapshot) {
	fmt.Println("Connection:")
	fmt.Printf("  Status: %s\n", snap.Status)
	if snap.Endpoint != "" {
		fmt.Printf("  Endpoint: %s\n", snap.Endpoint)
	}
	if snap.Version != "" {
		fmt.Printf("  Engine version: %s\n", snap.Version)
	}
	if len(snap.Tools) > 0 {
		fmt.Printf("  Tools: %d\n", len(snap.Tools))
	}
	if snap.System != nil {
		fmt.Printf("  System: %s %s (%s)\n", snap.System.Platform, snap.System.OSVersion, snap.System.Architecture)
	}
	if snap.Browser != nil {
		state := "stopped"
		if snap.Browser.Running {
			state = fmt.Sprintf("running (%d pages)", snap.Browser.ActivePages)
		}
		fmt.Printf("  Browser: %s\n", state)
	}
	if snap.LastError != "" {
		fmt.Printf("  Last error: %s\n", snap.LastError)
	}
}
