// Package preflight validates the host before a benchmark run: the tools the
// orchestrator shells out to (docker, sudo, perf), the kernel interfaces the
// measurement depends on, and basic resource headroom. A failed required
// check means the run would die partway through, so sweeps refuse to start.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the outcome of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs host validation checks.
type Checker struct {
	verbose bool
	output  io.Writer

	// Seams for tests.
	lookPath   func(file string) (string, error)
	runCommand func(ctx context.Context, name string, args ...string) error
	statPath   func(name string) error
	readFile   func(name string) ([]byte, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables per-check detail output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets the writer PrintResults uses.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		output:   os.Stdout,
		lookPath: exec.LookPath,
		runCommand: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		statPath: func(name string) error {
			_, err := os.Stat(name)
			return err
		},
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check. workDir is where results and profiles land, so
// disk headroom is measured there.
func (c *Checker) RunAll(ctx context.Context, workDir string) []CheckResult {
	return []CheckResult{
		c.CheckDocker(ctx),
		c.CheckCompose(ctx),
		c.CheckSudo(),
		c.CheckPerf(),
		c.CheckDropCaches(),
		c.CheckDiskSpace(workDir),
		c.CheckMemory(),
		c.CheckFileDescriptors(),
	}
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus condenses results into one status word.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "vdbbench Environment Check")
	_, _ = fmt.Fprintln(c.output, "==========================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}
	if len(errors) > 0 {
		_, _ = fmt.Fprintf(c.output, "\n%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}
	if len(warnings) > 0 {
		_, _ = fmt.Fprintf(c.output, "\n%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}
