package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aimatrx/matrx/internal/client"
	"github.com/aimatrx/matrx/internal/credentials"
	"github.com/aimatrx/matrx/internal/discovery"
	matrxversion "github.com/aimatrx/matrx/internal/version"
)

var rootCmd *cobra.Command

// OutputFormatter handles output in JSON or human-readable format
type OutputFormatter struct {
	jsonMode bool
}

// newOutputFormatter creates a new formatter based on the command's --json flag
func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode}
}

// Print outputs data in the appropriate format
func (f *OutputFormatter) Print(data any) error {
	if f.jsonMode {
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(jsonBytes))
	} else {
		switch v := data.(type) {
		case string:
			fmt.Println(v)
		default:
			// Fallback to JSON for unknown types
			jsonBytes, _ := json.MarshalIndent(data, "", "  ")
			fmt.Println(string(jsonBytes))
		}
	}
	return nil
}

// Success outputs a success message
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	fmt.Println(message)
	return nil
}

// Error outputs an error message
func (f *OutputFormatter) Error(message string, err error) error {
	if f.jsonMode {
		output := map[string]any{
			"success": false,
			"error":   message,
		}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(os.Stderr, string(jsonBytes))
	} else {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
		} else {
			fmt.Fprintln(os.Stderr, message)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", message, err)
	}
	return errors.New(message)
}

// connectEngine probes for a running engine and returns a one-shot client
// bound to it. Callers own the client and must Close it.
func connectEngine(ctx context.Context) (*client.Client, error) {
	endpoint, err := discovery.Probe(ctx, discovery.Candidates())
	if err != nil {
		return nil, err
	}
	c := client.New(nil)
	c.SetTokenSource(client.TokenFunc(credentials.Token))
	c.SetEndpoint(endpoint)
	return c, nil
}

// engineUnreachable renders the shared "no engine" failure with a hint.
func engineUnreachable(out *OutputFormatter, err error) error {
	return out.Error("Engine is not reachable (try 'matrx engine start' or 'matrx monitor')", err)
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "matrx",
		Short: "Matrx - local engine connection manager",
		Long: `Matrx locates, launches and supervises the local automation engine,
keeps a realtime event channel open to it, and synchronizes settings
and the cloud session on its behalf.

Run 'matrx monitor' for a long-lived connection, or the one-shot
commands (status, refresh, tools, settings, proxy) for direct control.`,
	}
	rootCmd.Version = matrxversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	// Add global --json flag
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

func main() {
	rootCmd.AddCommand(
		newStatusCommand(),
		newMonitorCommand(),
		newRefreshCommand(),
		newEngineCommand(),
		newSettingsCommand(),
		newToolsCommand(),
		newProxyCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
