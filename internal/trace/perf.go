package trace

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PerfTracer is the record-then-postprocess variant: perf captures a binary
// trace system-wide while the measured stage runs, and Stop converts it into
// the same columnar text the probe variant writes, so downstream
// summarization is variant-agnostic.
type PerfTracer struct {
	// GracePeriod bounds the wait between SIGTERM and SIGKILL. perf
	// finalizes its data file on SIGTERM, so the grace period also covers
	// the flush.
	GracePeriod time.Duration
}

// NewPerfTracer builds a PerfTracer with default timings.
func NewPerfTracer() *PerfTracer {
	return &PerfTracer{GracePeriod: DefaultGracePeriod}
}

// Start launches system-wide perf recording of major faults and block-IO
// issue events. The raw capture lands next to outputPath with a .data
// extension and is removed after conversion.
func (t *PerfTracer) Start(ctx context.Context, outputPath string) (Handle, error) {
	dataPath := strings.TrimSuffix(outputPath, ".txt") + ".data"

	// A leftover capture is root-owned from the previous sudo run.
	if _, err := os.Stat(dataPath); err == nil {
		if err := exec.CommandContext(ctx, "sudo", "rm", "-f", dataPath).Run(); err != nil {
			return nil, fmt.Errorf("remove stale perf data: %w", err)
		}
	}

	cmd := exec.Command("sudo", "-E", "perf", "record", "-a",
		"-e", "major-faults",
		"-e", "block:block_rq_issue",
		"-o", dataPath)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch perf record: %w", err)
	}
	grace := t.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	return newProcHandle(cmd, grace, func() error {
		return convertPerfData(dataPath, outputPath)
	}), nil
}

// convertPerfData turns a raw perf capture into the shared columnar text and
// removes the capture.
func convertPerfData(dataPath, outputPath string) error {
	if _, err := os.Stat(dataPath); err != nil {
		return fmt.Errorf("perf data file not found at %s", dataPath)
	}

	// perf record under sudo leaves a root-owned file; reown it so perf
	// script runs unprivileged.
	owner := fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	if err := exec.Command("sudo", "chown", owner, dataPath).Run(); err != nil {
		return fmt.Errorf("chown perf data: %w", err)
	}

	var stdout, stderr bytes.Buffer
	script := exec.Command("perf", "script", "-i", dataPath)
	script.Stdout = &stdout
	script.Stderr = &stderr
	if err := script.Run(); err != nil {
		return fmt.Errorf("perf script: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	events, err := ParsePerfScript(&stdout)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(RenderEvents(events)), 0o644); err != nil {
		return fmt.Errorf("write trace text: %w", err)
	}
	return os.Remove(dataPath)
}

// perfLineRE captures the common header of a perf script line, e.g.
// " python3  736818 [017] 12241.973464: ..."
var (
	perfLineRE  = regexp.MustCompile(`^\s*(.+?)\s+(\d+)\s+\[\d+\]\s+([\d.]+):`)
	perfBytesRE = regexp.MustCompile(`bytes=(\d+)`)
)

// ParsePerfScript classifies perf script output lines into events. Lines
// that are neither major faults nor block-IO issues are dropped.
func ParsePerfScript(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		m := perfLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		comm := strings.TrimSpace(m[1])
		pid, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		ts, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}

		switch {
		case strings.Contains(line, "major-faults"):
			events = append(events, Event{Time: ts, Comm: comm, PID: pid, Kind: EventMajorFault})
		case strings.Contains(line, "block:block_rq_issue"):
			var size int64
			if bm := perfBytesRE.FindStringSubmatch(line); bm != nil {
				size, _ = strconv.ParseInt(bm[1], 10, 64)
			}
			events = append(events, Event{Time: ts, Comm: comm, PID: pid, Kind: EventDiskIO, Bytes: size})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan perf script output: %w", err)
	}
	return events, nil
}
