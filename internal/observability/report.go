package observability

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/aimatrx/matrx/internal/engine"
	"github.com/aimatrx/matrx/internal/eventbus"
)

// Report renders a plain-text summary of connection state and bus activity,
// suitable for printing when a monitor session ends or on demand.
type Report struct {
	bus      *eventbus.Bus
	counter  *EventCounter
	snapshot SnapshotProvider
	process  ProcessProvider
}

// SnapshotProvider exposes the current connection snapshot.
type SnapshotProvider interface {
	Snapshot() engine.Snapshot
}

// ProcessProvider exposes the state of a locally managed engine process.
type ProcessProvider interface {
	Managed() bool
	Running() bool
	Pid() int
	IsAutostartEnabled() bool
}

// NewReport constructs a report backed by the provided bus and event counter.
func NewReport(bus *eventbus.Bus, counter *EventCounter) *Report {
	return &Report{
		bus:     bus,
		counter: counter,
	}
}

// WithSnapshot enables including the connection snapshot in the report.
func (r *Report) WithSnapshot(provider SnapshotProvider) {
	r.snapshot = provider
}

// WithProcess enables including the engine process state in the report.
func (r *Report) WithProcess(provider ProcessProvider) {
	r.process = provider
}

// Render produces the report as display-ready text.
func (r *Report) Render() []byte {
	var buf bytes.Buffer

	r.writeSnapshot(&buf)
	r.writeProcess(&buf)
	r.writeEventCounters(&buf)
	r.writeBusMetrics(&buf)

	return buf.Bytes()
}

func (r *Report) writeSnapshot(buf *bytes.Buffer) {
	if r.snapshot == nil {
		return
	}

	snap := r.snapshot.Snapshot()

	fmt.Fprintf(buf, "status:   %s\n", snap.Status)
	if snap.Endpoint != "" {
		fmt.Fprintf(buf, "endpoint: %s\n", snap.Endpoint)
	}
	if snap.Version != "" {
		fmt.Fprintf(buf, "version:  %s\n", snap.Version)
	}
	channel := "down"
	if snap.ChannelUp {
		channel = "up"
	}
	fmt.Fprintf(buf, "channel:  %s\n", channel)
	if snap.LastError != "" {
		fmt.Fprintf(buf, "error:    %s\n", snap.LastError)
	}
}

func (r *Report) writeProcess(buf *bytes.Buffer) {
	if r.process == nil {
		return
	}
	if !r.process.Managed() {
		buf.WriteString("process:  external\n")
		return
	}

	state := "stopped"
	if r.process.Running() {
		state = fmt.Sprintf("running (pid %d)", r.process.Pid())
	}
	autostart := "off"
	if r.process.IsAutostartEnabled() {
		autostart = "on"
	}
	fmt.Fprintf(buf, "process:  managed, %s, autostart %s\n", state, autostart)
}

func (r *Report) writeEventCounters(buf *bytes.Buffer) {
	if r.counter == nil {
		return
	}

	counts := r.counter.Snapshot()
	if len(counts) == 0 {
		return
	}

	buf.WriteString("events by topic:\n")

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, string(topic))
	}
	sort.Strings(topics)
	for _, topicName := range topics {
		value := counts[eventbus.Topic(topicName)]
		fmt.Fprintf(buf, "  %-24s %d\n", topicName, value)
	}
}

func (r *Report) writeBusMetrics(buf *bytes.Buffer) {
	if r.bus == nil {
		return
	}

	metrics := r.bus.Metrics()
	fmt.Fprintf(buf, "bus: published=%d dropped=%d\n", metrics.PublishTotal, metrics.DroppedTotal)
}
