package trace

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProbeTracer runs a long-lived kernel-probe process that prints one line
// per fault/IO event directly to the output path in the shared columnar
// schema. The process is started detached from the measured stage's context;
// only the termination path is cancellable.
type ProbeTracer struct {
	// Command is the tracer invocation; "--output <path>" is appended.
	// The default mirrors the privileged probe script launch.
	Command []string
	// GracePeriod bounds the wait between SIGTERM and SIGKILL.
	GracePeriod time.Duration
}

// NewProbeTracer builds a ProbeTracer around the given script path.
func NewProbeTracer(script string) *ProbeTracer {
	return &ProbeTracer{
		Command:     []string{"sudo", "-E", "python3", script},
		GracePeriod: DefaultGracePeriod,
	}
}

// Start launches the probe process.
func (t *ProbeTracer) Start(_ context.Context, outputPath string) (Handle, error) {
	if len(t.Command) == 0 {
		return nil, fmt.Errorf("probe tracer: empty command")
	}
	args := append(append([]string{}, t.Command[1:]...), "--output", outputPath)
	cmd := exec.Command(t.Command[0], args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch probe tracer: %w", err)
	}
	grace := t.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}
	return newProcHandle(cmd, grace, nil), nil
}

// procHandle owns a started tracer process. Stop runs exactly once:
// SIGTERM, bounded wait, SIGKILL if still alive, then the optional finish
// step (used by the record-then-postprocess variant).
type procHandle struct {
	cmd    *exec.Cmd
	grace  time.Duration
	waitCh chan error
	finish func() error

	once sync.Once
	err  error
}

func newProcHandle(cmd *exec.Cmd, grace time.Duration, finish func() error) *procHandle {
	h := &procHandle{cmd: cmd, grace: grace, waitCh: make(chan error, 1), finish: finish}
	go func() { h.waitCh <- cmd.Wait() }()
	return h
}

func (h *procHandle) Stop() error {
	h.once.Do(func() {
		h.err = h.stop()
		if h.finish != nil {
			if err := h.finish(); err != nil && h.err == nil {
				h.err = err
			}
		}
	})
	return h.err
}

func (h *procHandle) stop() error {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; collect the exit status.
		<-h.waitCh
		return nil
	}
	select {
	case <-h.waitCh:
		return nil
	case <-time.After(h.grace):
	}
	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill tracer after grace period: %w", err)
	}
	<-h.waitCh
	return nil
}
