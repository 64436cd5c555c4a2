package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimatrx/matrx/internal/client"
	"github.com/aimatrx/matrx/internal/config"
	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/credentials"
	"github.com/aimatrx/matrx/internal/discovery"
	"github.com/aimatrx/matrx/internal/supervisor"
	matrxversion "github.com/aimatrx/matrx/internal/version"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show engine and connection status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStatus,
	}
	cmd.Flags().Int("events", 0, "Include the N most recent connection events")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	eventCount, _ := cmd.Flags().GetInt("events")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	paths := config.GetPaths()
	sup := supervisor.New(paths)

	status := map[string]any{
		"client_version": matrxversion.String(),
		"managed":        sup.Managed(),
	}
	if sup.Managed() {
		status["process_running"] = sup.Running()
		if pid := sup.Pid(); pid > 0 {
			status["pid"] = pid
		}
		status["autostart"] = sup.IsAutostartEnabled()
	}

	// Stored identity is informational; a missing store is not an error here.
	var recent []store.JournalEntry
	if st, err := store.Open(store.Options{}); err == nil {
		status["settings_db"] = st.Path()
		if id, err := st.EnsureInstanceID(ctx); err == nil {
			status["instance_id"] = id
		}
		if last, err := st.GetState(ctx, store.StateLastEndpoint); err == nil && last != "" {
			status["last_endpoint"] = last
		}
		if eventCount > 0 {
			if entries, err := st.RecentEvents(ctx, eventCount); err == nil {
				recent = entries
			}
		}
		st.Close()
	}
	if len(recent) > 0 {
		status["recent_events"] = recent
	}

	endpoint, probeErr := discovery.Probe(ctx, discovery.Candidates())
	if probeErr == nil {
		status["engine"] = "running"
		status["endpoint"] = endpoint

		c := client.New(nil)
		c.SetTokenSource(client.TokenFunc(credentials.Token))
		c.SetEndpoint(endpoint)
		defer c.Close()

		if v, err := c.Version(ctx); err == nil {
			status["engine_version"] = v
			if w := matrxversion.MismatchWarning(v); w != "" {
				status["version_warning"] = w
			}
		}
	} else {
		status["engine"] = "not found"
	}

	if creds, err := credentials.Load(); err == nil && creds != nil && creds.Token != "" {
		status["cloud_user"] = creds.UserID
	}

	if out.jsonMode {
		return out.Print(status)
	}

	fmt.Println("Engine Status:")
	if probeErr == nil {
		fmt.Printf("  Engine: running at %s\n", endpoint)
		if v, ok := status["engine_version"]; ok {
			fmt.Printf("  Version: %v\n", v)
		}
	} else {
		fmt.Println("  Engine: not found")
		if last, ok := status["last_endpoint"]; ok {
			fmt.Printf("  Last endpoint: %v\n", last)
		}
	}
	if sup.Managed() {
		state := "stopped"
		if sup.Running() {
			state = fmt.Sprintf("running (pid %d)", sup.Pid())
		}
		fmt.Printf("  Process: managed, %s\n", state)
		autostart := "off"
		if sup.IsAutostartEnabled() {
			autostart = "on"
		}
		fmt.Printf("  Autostart: %s\n", autostart)
	} else {
		fmt.Println("  Process: external")
	}
	if id, ok := status["instance_id"]; ok {
		fmt.Printf("  Instance: %v\n", id)
	}
	if user, ok := status["cloud_user"]; ok {
		fmt.Printf("  Cloud: signed in as %v\n", user)
	} else {
		fmt.Println("  Cloud: signed out")
	}
	if w, ok := status["version_warning"]; ok {
		fmt.Printf("  %v\n", w)
	}
	if len(recent) > 0 {
		fmt.Println("  Recent events:")
		for _, e := range recent {
			fmt.Printf("    %s  %s  %s\n", e.CreatedAt.Format(time.RFC3339), e.Topic, e.Detail)
		}
	}

	return nil
}
