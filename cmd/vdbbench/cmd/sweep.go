package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/config"
	"github.com/Jangseon-park/vector-db-benchmark/internal/lifecycle"
	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
	"github.com/Jangseon-park/vector-db-benchmark/internal/preflight"
	"github.com/Jangseon-park/vector-db-benchmark/internal/results"
	"github.com/Jangseon-park/vector-db-benchmark/internal/sweep"
	"github.com/Jangseon-park/vector-db-benchmark/internal/trace"
)

func newSweepCmd() *cobra.Command {
	var (
		engines       []string
		datasets      []string
		sizes         []string
		iterations    int
		clearVolumes  bool
		engineDir     string
		containerName string
		tracerKind    string
		probeScript   string
		noDropCaches  bool
		cacheSettle   time.Duration
		skipChecks    bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the full benchmark matrix with kernel tracing",
		Long: `Sweep the Cartesian product of datasets, experiments, resource sizes and
iterations. Each cell starts the containerized engine at the given size,
uploads the dataset unless its volumes already hold it, waits for index
build and compaction to settle, then runs the search stage under a kernel
tracer. The engine is stopped after every cell, even on failure.

Traces land in {profile_dir}/{dataset}/{size}/{experiment}_{iteration}.txt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !skipChecks {
				checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()))
				checks := checker.RunAll(ctx, cfg.ResultsDir)
				if checker.HasCriticalFailures(checks) {
					checker.PrintResults(checks)
					return fmt.Errorf("environment check failed; fix the errors above or pass --skip-checks")
				}
			}

			datasetDefs, err := config.LoadDatasets(cfg.DatasetsFile)
			if err != nil {
				return err
			}
			experiments, err := config.LoadExperiments(cfg.ExperimentsFile)
			if err != nil {
				return err
			}
			dsNames, err := matchNames(datasets, datasetDefs)
			if err != nil {
				return err
			}
			expNames, err := matchNames(engines, experiments)
			if err != nil {
				return err
			}
			if len(sizes) == 0 {
				return fmt.Errorf("at least one --sizes value is required")
			}

			out := output.New(cmd.OutOrStdout())

			store, err := results.NewStore(cfg.ResultsDir)
			if err != nil {
				return err
			}

			manager, err := lifecycle.NewManager(lifecycle.ManagerConfig{
				ServersRoot:   cfg.ServersRoot,
				EngineDir:     engineDir,
				ContainerName: containerName,
				StartTimeout:  cfg.StartTimeout.Std(),
				Out:           out,
			})
			if err != nil {
				return err
			}

			var tracer trace.Tracer
			switch tracerKind {
			case "perf":
				tracer = trace.NewPerfTracer()
			case "probe":
				if probeScript == "" {
					return fmt.Errorf("--probe-script is required with the probe tracer")
				}
				tracer = trace.NewProbeTracer(probeScript)
			default:
				return fmt.Errorf("unknown tracer %q (perf or probe)", tracerKind)
			}
			coordinator := trace.NewCoordinator(tracer, 0, nil, out)

			driver := sweep.NewDriver(sweep.DriverConfig{
				Matrix: sweep.Matrix{
					Datasets:     dsNames,
					Experiments:  expNames,
					Sizes:        sizes,
					Iterations:   iterations,
					ClearVolumes: clearVolumes,
				},
				Manager:     manager,
				Coordinator: coordinator,
				Store:       store,
				Datasets:    datasetDefs,
				Experiments: experiments,
				ProfileDir:  cfg.ProfileDir,
				Detailed:    cfg.DetailedResults,
				OpenSet: func(ctx context.Context, spec backend.Spec) (*backend.Set, error) {
					spec.RecoveryPollInterval = cfg.RecoveryPollInterval.Std()
					return backend.Open(ctx, spec)
				},
				DropCaches:  dropCachesFn(noDropCaches),
				CacheSettle: cacheSettle,
				Out:         out,
			})
			return driver.Run(ctx)
		},
	}

	cmd.Flags().StringSliceVar(&engines, "engines", nil, "Experiment name patterns to sweep (default: all)")
	cmd.Flags().StringSliceVar(&datasets, "datasets", nil, "Dataset name patterns to sweep (default: all)")
	cmd.Flags().StringSliceVar(&sizes, "sizes", nil, "Resource sizes to sweep, matching server directory names (required)")
	cmd.Flags().IntVar(&iterations, "iterations", 1, "Iterations per matrix cell")
	cmd.Flags().BoolVar(&clearVolumes, "clear-volumes", false, "Wipe every size's volumes before each dataset")
	cmd.Flags().StringVar(&engineDir, "engine-dir", "milvus-single-node", "Server directory under servers root")
	cmd.Flags().StringVar(&containerName, "container-name", "milvus-standalone", "Container name to poll for running state")
	cmd.Flags().StringVar(&tracerKind, "tracer", "perf", "Kernel tracer: perf or probe")
	cmd.Flags().StringVar(&probeScript, "probe-script", "", "Probe script path for the probe tracer")
	cmd.Flags().BoolVar(&noDropCaches, "no-drop-caches", false, "Keep the page cache warm between stages")
	cmd.Flags().DurationVar(&cacheSettle, "cache-settle", 10*time.Second, "Settle delay after a page cache drop")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip the host environment check")

	return cmd
}

func dropCachesFn(disabled bool) func(ctx context.Context) error {
	if disabled {
		return nil
	}
	return lifecycle.DropPageCache
}
