// Package trace coordinates kernel-event tracing around the measured query
// stage. A tracer runs as an independent process; the coordinator guarantees
// its termination (graceful signal, bounded wait, forced kill) for every
// outcome of the measured function, then converges both tracer variants on
// one columnar text schema.
package trace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
)

// EventKind classifies one trace event.
type EventKind string

const (
	EventMajorFault EventKind = "Major Fault"
	EventDiskIO     EventKind = "Disk IO"
)

// Event is one kernel fault or block-IO occurrence.
type Event struct {
	Time  float64 // seconds
	Comm  string
	PID   int
	Kind  EventKind
	Bytes int64 // Disk IO only
}

// Tracer launches a background tracing process writing (eventually) to
// outputPath in the columnar text schema.
type Tracer interface {
	Start(ctx context.Context, outputPath string) (Handle, error)
}

// Handle owns a running tracer. Stop is idempotent and performs the
// graceful-then-forced termination sequence plus any post-processing.
type Handle interface {
	Stop() error
}

// Default coordinator timings.
const (
	DefaultSettleDelay = 1 * time.Second
	DefaultGracePeriod = 5 * time.Second
)

// Coordinator runs a measured function under a tracer.
type Coordinator struct {
	tracer Tracer
	settle time.Duration
	log    *slog.Logger
	out    *output.Writer
}

// NewCoordinator builds a Coordinator. settle is the fixed delay that lets
// the tracer attach its probes before load begins; zero selects the default.
func NewCoordinator(tracer Tracer, settle time.Duration, log *slog.Logger, out *output.Writer) *Coordinator {
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	if log == nil {
		log = slog.Default()
	}
	if out == nil {
		out = output.Discard()
	}
	return &Coordinator{tracer: tracer, settle: settle, log: log, out: out}
}

// RunWithProfiling starts the tracer, runs fn synchronously, and stops the
// tracer no matter how fn ends. A tracer that fails to launch is a fatal
// setup failure; a tracer that fails to stop cleanly is a warning layered
// onto fn's result.
func (c *Coordinator) RunWithProfiling(ctx context.Context, outputPath string, fn func(ctx context.Context) error) error {
	handle, err := c.tracer.Start(ctx, outputPath)
	if err != nil {
		return fmt.Errorf("start tracer: %w", err)
	}
	defer func() {
		c.out.Printf("Measured stage finished. Terminating profiler...")
		if stopErr := handle.Stop(); stopErr != nil {
			c.out.Warningf("tracer shutdown: %v", stopErr)
			c.log.Warn("tracer shutdown failed", "output", outputPath, "error", stopErr)
		} else {
			c.out.Printf("Profiler terminated.")
		}
	}()

	// Let the tracer attach its probes before load begins.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.settle):
	}

	return fn(ctx)
}

// WriteHeader writes the columnar text header both tracer variants share.
func WriteHeader(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%-12s %-16s %-10s %-12s %s\n", "TIME(s)", "COMM", "PID", "EVENT", "DETAILS")
	return err
}

// WriteEvent writes one event line in the shared schema.
func WriteEvent(w io.Writer, ev Event) error {
	if ev.Kind == EventDiskIO {
		_, err := fmt.Fprintf(w, "%-12.6f %-16s %-10d %-12s Size=%d\n", ev.Time, ev.Comm, ev.PID, string(ev.Kind), ev.Bytes)
		return err
	}
	_, err := fmt.Fprintf(w, "%-12.6f %-16s %-10d %-12s\n", ev.Time, ev.Comm, ev.PID, string(ev.Kind))
	return err
}

// RenderEvents renders a full trace text document.
func RenderEvents(events []Event) string {
	var sb strings.Builder
	_ = WriteHeader(&sb)
	for _, ev := range events {
		_ = WriteEvent(&sb, ev)
	}
	return sb.String()
}
