// Package output provides the user-visible progress stream of a benchmark
// run: stage announcements, warnings for every downgraded failure, and
// success/error markers. Colors engage only on terminals.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Writer prints progress lines for one run.
type Writer struct {
	out   io.Writer
	warn  *color.Color
	fail  *color.Color
	stage *color.Color
	plain bool
}

// New creates a Writer. Color is enabled only when out is a terminal.
func New(out io.Writer) *Writer {
	w := &Writer{
		out:   out,
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed),
		stage: color.New(color.FgCyan, color.Bold),
	}
	if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		w.plain = true
	}
	return w
}

// Stage announces a pipeline stage ("Configure", "Upload", "Search").
func (w *Writer) Stage(name string) {
	if w.plain {
		_, _ = fmt.Fprintf(w.out, "Experiment stage: %s\n", name)
		return
	}
	_, _ = w.stage.Fprintf(w.out, "Experiment stage: %s\n", name)
}

// Printf prints a plain progress line.
func (w *Writer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// Warningf prints a downgraded-failure line. Every non-fatal error the
// orchestrator swallows must pass through here so the operator can see it.
func (w *Writer) Warningf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.plain {
		_, _ = fmt.Fprintf(w.out, "Warning: %s\n", msg)
		return
	}
	_, _ = w.warn.Fprintf(w.out, "Warning: %s\n", msg)
}

// Errorf prints a fatal-path line before the error propagates.
func (w *Writer) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.plain {
		_, _ = fmt.Fprintf(w.out, "Error: %s\n", msg)
		return
	}
	_, _ = w.fail.Fprintf(w.out, "Error: %s\n", msg)
}

// Successf prints a completion line.
func (w *Writer) Successf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format+"\n", args...)
}

// Discard returns a Writer that drops everything. Used by tests.
func Discard() *Writer {
	return New(io.Discard)
}
