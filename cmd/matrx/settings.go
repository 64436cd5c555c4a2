package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimatrx/matrx/internal/client"
	"github.com/aimatrx/matrx/internal/config"
	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/credentials"
	"github.com/aimatrx/matrx/internal/discovery"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/settings"
	"github.com/aimatrx/matrx/internal/supervisor"
)

func newSettingsCommand() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and update local settings",
	}

	listCmd := &cobra.Command{
		Use:           "list",
		Short:         "List all settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          settingsList,
	}

	getCmd := &cobra.Command{
		Use:           "get <key>",
		Short:         "Show a single setting",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          settingsGet,
	}

	setCmd := &cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Persist a setting and apply its effect",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          settingsSet,
	}

	syncCmd := &cobra.Command{
		Use:           "sync",
		Short:         "Reconcile settings with the cloud through the engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          settingsSync,
	}
	syncCmd.Flags().Bool("push", false, "Force-push settings to the cloud without pulling")
	syncCmd.Flags().Bool("pull", false, "Force-pull cloud settings without pushing")

	settingsCmd.AddCommand(listCmd, getCmd, setCmd, syncCmd)
	return settingsCmd
}

// openSynchronizer assembles the one-shot settings stack. The engine client
// is bound to a live endpoint when one answers; otherwise propagation to the
// engine fails soft while local persistence still works.
func openSynchronizer(ctx context.Context) (*settings.Synchronizer, *store.Store, *client.Client, error) {
	paths, err := config.EnsureDirs()
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.Open(store.Options{DBPath: paths.SettingsDB})
	if err != nil {
		return nil, nil, nil, err
	}

	c := client.New(nil)
	c.SetTokenSource(client.TokenFunc(credentials.Token))
	if endpoint, err := discovery.Probe(ctx, discovery.Candidates()); err == nil {
		c.SetEndpoint(endpoint)
	}

	sync, err := settings.New(settings.Options{
		Store:   st,
		Client:  c,
		Process: supervisor.New(paths),
	})
	if err != nil {
		st.Close()
		c.Close()
		return nil, nil, nil, err
	}
	return sync, st, c, nil
}

func settingsList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sync, st, c, err := openSynchronizer(ctx)
	if err != nil {
		return out.Error("Failed to open the settings store", err)
	}
	defer st.Close()
	defer c.Close()

	current, err := sync.Load(ctx)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}

	if out.jsonMode {
		return out.Print(current)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, key := range settings.Keys() {
		value, _ := current.Get(key)
		fmt.Fprintf(w, "%s\t%v\n", key, value)
	}
	return w.Flush()
}

func settingsGet(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sync, st, c, err := openSynchronizer(ctx)
	if err != nil {
		return out.Error("Failed to open the settings store", err)
	}
	defer st.Close()
	defer c.Close()

	current, err := sync.Load(ctx)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	value, err := current.Get(args[0])
	if err != nil {
		return out.Error("Unknown setting", err)
	}

	if out.jsonMode {
		return out.Print(map[string]any{"key": args[0], "value": value})
	}
	fmt.Printf("%v\n", value)
	return nil
}

func settingsSet(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	key, raw := args[0], args[1]

	value, err := settings.ParseValue(key, raw)
	if err != nil {
		return out.Error("Invalid setting", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sync, st, c, err := openSynchronizer(ctx)
	if err != nil {
		return out.Error("Failed to open the settings store", err)
	}
	defer st.Close()
	defer c.Close()

	_, err = sync.Save(ctx, key, value)
	var propErr *settings.PropagationError
	if errors.As(err, &propErr) {
		// The value is persisted; only its side effect failed.
		fmt.Fprintf(os.Stderr, "Warning: %s saved, but applying it failed: %v\n", propErr.Key, propErr.Err)
		err = nil
	}
	if err != nil {
		return out.Error("Failed to save setting", err)
	}

	return out.Success(fmt.Sprintf("%s = %v", key, value), map[string]any{
		"key":   key,
		"value": value,
	})
}

func settingsSync(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	push, _ := cmd.Flags().GetBool("push")
	pull, _ := cmd.Flags().GetBool("pull")
	if push && pull {
		return out.Error("Invalid flags", errors.New("--push and --pull are mutually exclusive"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := discovery.Probe(ctx, discovery.Candidates()); err != nil {
		return engineUnreachable(out, err)
	}

	sync, st, c, err := openSynchronizer(ctx)
	if err != nil {
		return out.Error("Failed to open the settings store", err)
	}
	defer st.Close()
	defer c.Close()

	var result *engine.SyncResult
	switch {
	case push:
		result, err = sync.PushSync(ctx)
	case pull:
		result, err = sync.PullSync(ctx)
	default:
		result, err = sync.FullSync(ctx)
	}
	if err != nil {
		return out.Error("Cloud sync failed", err)
	}

	if out.jsonMode {
		return out.Print(result)
	}
	if result.Reason != "" {
		fmt.Printf("Sync result: %s (%s)\n", result.Status, result.Reason)
	} else {
		fmt.Printf("Sync result: %s\n", result.Status)
	}
	return nil
}
