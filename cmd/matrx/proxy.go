package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimatrx/matrx/internal/engine"
)

func newProxyCommand() *cobra.Command {
	proxyCmd := &cobra.Command{
		Use:   "proxy",
		Short: "Control the engine's local HTTP proxy",
	}

	statusCmd := &cobra.Command{
		Use:           "status",
		Short:         "Show proxy state and traffic counters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          proxyStatus,
	}

	startCmd := &cobra.Command{
		Use:           "start",
		Short:         "Start the proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          proxyStart,
	}
	startCmd.Flags().Int("port", 0, "Listen port (0 lets the engine choose)")

	stopCmd := &cobra.Command{
		Use:           "stop",
		Short:         "Stop the proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          proxyStop,
	}

	proxyCmd.AddCommand(statusCmd, startCmd, stopCmd)
	return proxyCmd
}

func proxyStatus(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := connectEngine(ctx)
	if err != nil {
		return engineUnreachable(out, err)
	}
	defer c.Close()

	status, err := c.ProxyStatus(ctx)
	if err != nil {
		return out.Error("Failed to read proxy status", err)
	}

	if out.jsonMode {
		return out.Print(status)
	}
	printProxyStatus(status)
	return nil
}

func proxyStart(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	port, _ := cmd.Flags().GetInt("port")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c, err := connectEngine(ctx)
	if err != nil {
		return engineUnreachable(out, err)
	}
	defer c.Close()

	status, err := c.StartProxy(ctx, port)
	if err != nil {
		return out.Error("Failed to start the proxy", err)
	}

	if out.jsonMode {
		return out.Print(status)
	}
	fmt.Printf("Proxy started on port %d\n", status.Port)
	if status.ProxyURL != "" {
		fmt.Printf("  URL: %s\n", status.ProxyURL)
	}
	return nil
}

func proxyStop(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c, err := connectEngine(ctx)
	if err != nil {
		return engineUnreachable(out, err)
	}
	defer c.Close()

	if err := c.StopProxy(ctx); err != nil {
		return out.Error("Failed to stop the proxy", err)
	}
	return out.Success("Proxy stopped", nil)
}

func printProxyStatus(status *engine.ProxyStatus) {
	fmt.Println("Proxy Status:")
	if !status.Running {
		fmt.Println("  Running: no")
		return
	}
	fmt.Println("  Running: yes")
	fmt.Printf("  Port: %d\n", status.Port)
	if status.ProxyURL != "" {
		fmt.Printf("  URL: %s\n", status.ProxyURL)
	}
	fmt.Printf("  Requests: %d\n", status.RequestCount)
	fmt.Printf("  Bytes forwarded: %d\n", status.BytesForwarded)
	fmt.Printf("  Active connections: %d\n", status.ActiveConnections)
	if status.UptimeSeconds > 0 {
		fmt.Printf("  Uptime: %s\n", time.Duration(status.UptimeSeconds*float64(time.Second)).Round(time.Second))
	}
}
