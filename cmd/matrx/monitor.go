package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimatrx/matrx/internal/client"
	"github.com/aimatrx/matrx/internal/config"
	"github.com/aimatrx/matrx/internal/config/store"
	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/eventbus"
	"github.com/aimatrx/matrx/internal/lifecycle"
	"github.com/aimatrx/matrx/internal/observability"
	"github.com/aimatrx/matrx/internal/settings"
	"github.com/aimatrx/matrx/internal/supervisor"
)

func newMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Keep the engine connection alive in the foreground",
		Long: `Monitor runs the full connection stack: it discovers (or launches) the
engine, opens the realtime channel, keeps health checks and the cloud
heartbeat running, and streams connection events to stdout.

Send SIGHUP to re-run the connection sequence; Ctrl+C exits and prints
a diagnostics report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMonitor,
	}
	cmd.Flags().Bool("quiet", false, "Suppress the event stream, print only the exit report")
	cmd.Flags().Bool("stop-engine", false, "Stop a managed engine when the monitor exits")
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	quiet, _ := cmd.Flags().GetBool("quiet")
	stopEngine, _ := cmd.Flags().GetBool("stop-engine")

	paths, err := config.EnsureDirs()
	if err != nil {
		return out.Error("Failed to prepare the matrx home directory", err)
	}

	st, err := store.Open(store.Options{DBPath: paths.SettingsDB})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: settings store unavailable: %v\n", err)
		st = nil
	} else {
		defer st.Close()
	}

	// Engine terminal output is the burstiest topic and the renderer draws
	// one event at a time, so give it extra headroom here.
	bus := eventbus.New(eventbus.WithTopicBuffer(eventbus.TopicEngineRemote, 2048))
	defer bus.Shutdown()
	counter := observability.NewEventCounter()
	bus.AddObserver(counter)

	c := client.New(bus)
	defer c.Close()
	sup := supervisor.New(paths)

	opts := lifecycle.Options{
		Client:     c,
		Supervisor: sup,
		Store:      st,
		Bus:        bus,
	}
	if st != nil {
		sync, err := settings.New(settings.Options{Store: st, Client: c, Process: sup, Bus: bus})
		if err != nil {
			return out.Error("Failed to build the settings synchronizer", err)
		}
		opts.Settings = sync
	}

	mgr, err := lifecycle.New(opts)
	if err != nil {
		return out.Error("Failed to build the lifecycle manager", err)
	}

	report := observability.NewReport(bus, counter)
	report.WithSnapshot(mgr)
	report.WithProcess(sup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscriptions go in before the first publish so the stream is complete.
	var printer *eventPrinter
	if !quiet {
		printer = newEventPrinter(os.Stdout, out.jsonMode)
		printer.Start(ctx, bus)
	}

	mgr.Run(ctx)

	sigCh := make(chan os.Signal, 2)
	notifyMonitorSignals(sigCh)
	defer signal.Stop(sigCh)

	// The sequence can block on a managed start; keep the signal loop in
	// charge so Ctrl+C stays responsive throughout.
	go func() {
		if err := mgr.Initialize(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Connection sequence failed: %v\n", err)
			if engine.IsFatal(err) {
				fmt.Fprintln(os.Stderr, "Monitoring continues; send SIGHUP to retry, Ctrl+C to exit.")
			}
		}
	}()

	for sig := range sigCh {
		if isRefreshSignal(sig) {
			go func() {
				if err := mgr.Refresh(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
				}
			}()
			continue
		}
		break
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
	}
	if stopEngine {
		if err := sup.Stop(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Engine stop: %v\n", err)
		}
	}
	if printer != nil {
		printer.Stop(shutdownCtx)
	}

	// The report is diagnostic text; keep stdout machine-readable in JSON mode.
	if out.jsonMode {
		os.Stderr.Write(report.Render())
	} else {
		os.Stdout.Write(report.Render())
	}
	return nil
}

// eventPrinter streams bus events as human-readable lines or NDJSON.
type eventPrinter struct {
	w        io.Writer
	jsonMode bool
	services eventbus.ServiceLifecycle

	mu sync.Mutex
}

func newEventPrinter(w io.Writer, jsonMode bool) *eventPrinter {
	return &eventPrinter{w: w, jsonMode: jsonMode}
}

// Start subscribes to the connection topics and begins printing. Call it
// before the stack publishes anything that should appear in the stream.
func (p *eventPrinter) Start(ctx context.Context, bus *eventbus.Bus) {
	p.services.Start(ctx)

	name := eventbus.WithSubscriptionName("monitor")
	status := eventbus.SubscribeTo(bus, eventbus.Engine.Status, name)
	channel := eventbus.SubscribeTo(bus, eventbus.Engine.Channel, name)
	remote := eventbus.SubscribeTo(bus, eventbus.Engine.Remote, name)
	changed := eventbus.SubscribeTo(bus, eventbus.Settings.Changed, name)
	synced := eventbus.SubscribeTo(bus, eventbus.Cloud.Sync, name)
	heartbeat := eventbus.SubscribeTo(bus, eventbus.Cloud.Heartbeat, name)
	p.services.AddSubscriptions(status, channel, remote, changed, synced, heartbeat)

	printAll(p, status, formatStatusEvent)
	printAll(p, channel, formatChannelEvent)
	printAll(p, remote, formatRemoteEvent)
	printAll(p, changed, formatSettingEvent)
	printAll(p, synced, formatSyncEvent)
	printAll(p, heartbeat, formatHeartbeatEvent)
}

// Stop closes the subscriptions and waits for in-flight lines to drain.
func (p *eventPrinter) Stop(ctx context.Context) {
	_ = p.services.Shutdown(ctx)
}

// printAll drains one subscription, rendering each envelope with format.
func printAll[T any](p *eventPrinter, sub *eventbus.TypedSubscription[T], format func(T) string) {
	p.services.Go(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub.C():
				if !ok {
					return
				}
				p.emit(env.Timestamp, string(env.Topic), env.Payload, format(env.Payload))
			}
		}
	})
}

func (p *eventPrinter) emit(ts time.Time, topic string, payload any, human string) {
	var line string
	if p.jsonMode {
		raw, err := json.Marshal(map[string]any{
			"time":  ts.Format(time.RFC3339),
			"topic": topic,
			"event": payload,
		})
		if err != nil {
			return
		}
		line = string(raw)
	} else {
		line = fmt.Sprintf("%s %-16s %s", ts.Local().Format("15:04:05"), topic, human)
	}

	p.mu.Lock()
	fmt.Fprintln(p.w, line)
	p.mu.Unlock()
}

func formatStatusEvent(ev eventbus.StatusChangedEvent) string {
	s := fmt.Sprintf("%s -> %s", ev.Previous, ev.Current)
	if ev.Endpoint != "" {
		s += " (" + ev.Endpoint + ")"
	}
	if ev.Reason != "" {
		s += ": " + ev.Reason
	}
	return s
}

func formatChannelEvent(ev eventbus.ChannelStateEvent) string {
	state := "down"
	if ev.Up {
		state = "up"
	}
	if ev.Reason != "" {
		return state + ": " + ev.Reason
	}
	return state
}

func formatRemoteEvent(ev eventbus.RemoteEvent) string {
	if len(ev.Data) == 0 {
		return ev.Type
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s {%s}", ev.Type, strings.Join(keys, ", "))
}

func formatSettingEvent(ev eventbus.SettingChangedEvent) string {
	s := fmt.Sprintf("%s = %v (%s)", ev.Key, ev.Value, ev.Origin)
	if ev.PropagationError != "" {
		s += " propagation failed: " + ev.PropagationError
	}
	return s
}

func formatSyncEvent(ev eventbus.SyncCompletedEvent) string {
	s := ev.Status
	if ev.Reason != "" {
		s += " (" + ev.Reason + ")"
	}
	if len(ev.ChangedKeys) > 0 {
		s += ": " + strings.Join(ev.ChangedKeys, ", ")
	}
	return s
}

func formatHeartbeatEvent(ev eventbus.HeartbeatEvent) string {
	if ev.OK {
		return "ok"
	}
	return "failed: " + ev.Error
}
