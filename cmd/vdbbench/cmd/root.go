// Package cmd provides the CLI commands for vdbbench.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Jangseon-park/vector-db-benchmark/internal/config"
	"github.com/Jangseon-park/vector-db-benchmark/internal/logging"
	"github.com/Jangseon-park/vector-db-benchmark/internal/profiling"
	"github.com/Jangseon-park/vector-db-benchmark/pkg/version"

	// Engine backends register themselves on import.
	_ "github.com/Jangseon-park/vector-db-benchmark/internal/backend/local"
	_ "github.com/Jangseon-park/vector-db-benchmark/internal/backend/milvus"
)

// Profiling flags for the tool's own runtime, separate from the kernel
// tracing applied to the engine under test.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the vdbbench CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vdbbench",
		Short: "Benchmark orchestration for vector search engines",
		Long: `vdbbench drives vector search engines through a configure, bulk-load and
query pipeline, manages the containerized engine lifecycle, and collects
kernel-level traces (major faults, block I/O) during measured search phases.

Runs are resumable: stages whose result artifacts already exist are skipped.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("vdbbench version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults apply when empty)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.vdbbench/logs/")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newSummaryCmd())
	cmd.AddCommand(newVolumesCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and logging per flags.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Info("Debug logging enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Short()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("start trace: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling, writes the memory profile if
// requested, and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the config file when --config is set, defaults otherwise.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// matchNames expands glob patterns against the defined names, preserving a
// stable sorted order. An empty pattern list selects everything.
func matchNames[V any](patterns []string, defined map[string]V) ([]string, error) {
	names := make([]string, 0, len(defined))
	for name := range defined {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(patterns) == 0 {
		return names, nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matched := false
		for _, name := range names {
			ok, err := filepath.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if ok {
				matched = true
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
		if !matched {
			return nil, fmt.Errorf("pattern %q matched nothing", pattern)
		}
	}
	return out, nil
}
