// Package lifecycle manages the external resources a benchmark cell owns:
// the containerized engine instance, its persisted volume directory, and the
// OS page cache. Compose operations shell out (compose is CLI-only); status
// checks go through the Docker API.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
	"github.com/Jangseon-park/vector-db-benchmark/internal/poll"
)

// ErrContainerNotRunning is the fatal setup failure: the engine container
// never reached running state within the start timeout.
var ErrContainerNotRunning = errors.New("lifecycle: container did not reach running state")

// Default timings, matching the observed orchestration behavior.
const (
	DefaultStartTimeout = 60 * time.Second
	DefaultStopTimeout  = 30 * time.Second
	DefaultPollInterval = 5 * time.Second
	DefaultSettleDelay  = 5 * time.Second
)

// ContainerLister is the slice of the Docker API the manager needs.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
}

// Manager starts and stops one containerized engine per resource size.
// State machine per size: Absent -> Starting -> Running -> Stopping ->
// Absent, with the returned existed flag distinguishing fresh from reused
// volumes.
type Manager struct {
	// serversRoot/engineDir/<size>/ holds the compose file; volumes/ inside
	// it is the persisted state.
	serversRoot   string
	engineDir     string
	containerName string

	docker ContainerLister

	// runCommand is the exec seam; tests override it.
	runCommand func(ctx context.Context, dir string, name string, args ...string) error

	startTimeout time.Duration
	stopTimeout  time.Duration
	pollInterval time.Duration
	settleDelay  time.Duration

	log *slog.Logger
	out *output.Writer
}

// ManagerConfig assembles a Manager.
type ManagerConfig struct {
	ServersRoot   string
	EngineDir     string // e.g. "milvus-single-node"
	ContainerName string // e.g. "milvus-standalone"
	Docker        ContainerLister
	StartTimeout  time.Duration
	StopTimeout   time.Duration
	PollInterval  time.Duration
	SettleDelay   time.Duration
	Log           *slog.Logger
	Out           *output.Writer
}

// NewManager builds a Manager. When cfg.Docker is nil a client is created
// from the environment.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Docker == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		cfg.Docker = cli
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = output.Discard()
	}
	m := &Manager{
		serversRoot:   cfg.ServersRoot,
		engineDir:     cfg.EngineDir,
		containerName: cfg.ContainerName,
		docker:        cfg.Docker,
		startTimeout:  cfg.StartTimeout,
		stopTimeout:   cfg.StopTimeout,
		pollInterval:  cfg.PollInterval,
		settleDelay:   cfg.SettleDelay,
		log:           cfg.Log,
		out:           cfg.Out,
	}
	m.runCommand = m.execCommand
	return m, nil
}

// SetRunCommand overrides the exec seam. Tests only.
func (m *Manager) SetRunCommand(fn func(ctx context.Context, dir string, name string, args ...string) error) {
	m.runCommand = fn
}

func (m *Manager) execCommand(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (m *Manager) sizeDir(size string) string {
	return filepath.Join(m.serversRoot, m.engineDir, size)
}

// VolumesDir returns the persisted volume directory for a size.
func (m *Manager) VolumesDir(size string) string {
	return filepath.Join(m.sizeDir(size), "volumes")
}

// VolumesExist reports whether the persisted volume directory for this size
// survived from an earlier run.
func (m *Manager) VolumesExist(size string) bool {
	_, err := os.Stat(m.VolumesDir(size))
	return err == nil
}

// RemoveVolumes wipes the persisted volume directory. The directory is
// root-owned (created by the container), so removal goes through sudo.
// Failure is fatal: a half-wiped volume invalidates the clean-start
// precondition.
func (m *Manager) RemoveVolumes(ctx context.Context, size string) error {
	dir := m.VolumesDir(size)
	if _, err := os.Stat(dir); err != nil {
		m.out.Printf("Volumes directory does not exist.")
		return nil
	}
	if err := m.runCommand(ctx, m.sizeDir(size), "sudo", "rm", "-rf", dir); err != nil {
		return fmt.Errorf("remove volumes %s: %w", dir, err)
	}
	m.out.Printf("Volumes directory removed.")
	return nil
}

// Start launches the engine containers for the given size. When clean is
// set the volume directory is wiped first. It returns whether volumes
// pre-existed, which tells the caller whether re-upload is necessary.
func (m *Manager) Start(ctx context.Context, size string, clean bool) (existed bool, err error) {
	dir := m.sizeDir(size)

	if clean {
		if m.VolumesExist(size) {
			m.out.Printf("Removing existing volumes for a clean start...")
			if err := m.RemoveVolumes(ctx, size); err != nil {
				return false, err
			}
		}
	}
	existed = m.VolumesExist(size)

	m.out.Printf("Starting %s containers...", m.engineDir)
	if err := m.runCommand(ctx, dir, "sudo", "docker", "compose", "up", "-d"); err != nil {
		return existed, fmt.Errorf("failed to start containers: %w", err)
	}

	// Give the service a moment before the first status probe.
	if err := m.sleep(ctx, m.settleDelay); err != nil {
		return existed, err
	}

	err = poll.Until(ctx, m.pollInterval, m.startTimeout, func(ctx context.Context) (bool, error) {
		running, err := m.containerRunning(ctx)
		if err != nil {
			m.log.Debug("container status probe failed", "error", err)
			return false, nil
		}
		return running, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return existed, fmt.Errorf("%w: %s (size %s)", ErrContainerNotRunning, m.containerName, size)
		}
		return existed, err
	}
	m.out.Printf("%s containers started", m.engineDir)
	return existed, nil
}

// Stop tears down containers, networks and volumes at the compose level and
// waits for the container to disappear. A lingering container is a warning,
// not an error: spotty teardown must not break the sweep.
func (m *Manager) Stop(ctx context.Context, size string) error {
	dir := m.sizeDir(size)
	if err := m.runCommand(ctx, dir, "sudo", "docker", "compose", "down", "-v"); err != nil {
		return fmt.Errorf("failed to stop containers: %w", err)
	}
	m.out.Printf("%s containers and volumes stopped and removed.", m.engineDir)

	err := poll.Until(ctx, m.pollInterval, m.stopTimeout, func(ctx context.Context) (bool, error) {
		present, err := m.containerPresent(ctx)
		if err != nil {
			m.log.Debug("container status probe failed", "error", err)
			return false, nil
		}
		return !present, nil
	})
	switch {
	case err == nil:
		m.out.Printf("%s containers confirmed to be stopped.", m.engineDir)
	case errors.Is(err, poll.ErrTimeout):
		m.out.Warningf("%s containers did not appear to stop cleanly.", m.engineDir)
		m.log.Warn("container lingering after compose down", "container", m.containerName, "size", size)
	default:
		return err
	}
	return nil
}

func (m *Manager) containerRunning(ctx context.Context) (bool, error) {
	listed, err := m.docker.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("name", m.containerName),
			filters.Arg("status", "running"),
		),
	})
	if err != nil {
		return false, err
	}
	return len(listed) > 0, nil
}

func (m *Manager) containerPresent(ctx context.Context) (bool, error) {
	listed, err := m.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", m.containerName)),
	})
	if err != nil {
		return false, err
	}
	return len(listed) > 0, nil
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
