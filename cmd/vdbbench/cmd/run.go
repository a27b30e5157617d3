package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/config"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
	"github.com/Jangseon-park/vector-db-benchmark/internal/lifecycle"
	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
	"github.com/Jangseon-park/vector-db-benchmark/internal/results"
	"github.com/Jangseon-park/vector-db-benchmark/internal/runner"
)

func newRunCmd() *cobra.Command {
	var (
		engines     []string
		datasets    []string
		skipUpload  bool
		skipSearch  bool
		skipExists  bool
		skipConf    bool
		dropCaches  bool
		checkLoaded bool
		detailed    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run benchmarks for matching experiments and datasets",
		Long: `Run the configure, upload and search pipeline for every matching
(experiment, dataset) pair. Patterns are shell globs against the names
defined in the experiments and datasets files.

A pair whose search artifacts all exist is skipped when --skip-if-exists
is set, so an interrupted invocation can simply be repeated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if detailed {
				cfg.DetailedResults = true
			}
			experiments, err := config.LoadExperiments(cfg.ExperimentsFile)
			if err != nil {
				return err
			}
			expNames, err := matchNames(engines, experiments)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())

			if checkLoaded {
				return runCheckLoaded(ctx, cfg, out, experiments, expNames)
			}

			datasetDefs, err := config.LoadDatasets(cfg.DatasetsFile)
			if err != nil {
				return err
			}
			dsNames, err := matchNames(datasets, datasetDefs)
			if err != nil {
				return err
			}

			store, err := results.NewStore(cfg.ResultsDir)
			if err != nil {
				return err
			}

			var flush func(ctx context.Context) error
			if dropCaches || cfg.DropCaches {
				flush = lifecycle.DropPageCache
			}

			opts := runner.Options{
				SkipUpload:    skipUpload,
				SkipSearch:    skipSearch,
				SkipIfExists:  skipExists,
				SkipConfigure: skipConf,
			}
			for _, expName := range expNames {
				exp := experiments[expName]
				for _, dsName := range dsNames {
					out.Printf("Running experiment %s with dataset %s", expName, dsName)
					if err := runPair(ctx, cfg, out, store, flush, exp, datasetDefs[dsName], opts); err != nil {
						return fmt.Errorf("experiment %s, dataset %s: %w", expName, dsName, err)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&engines, "engines", nil, "Experiment name patterns to run (default: all)")
	cmd.Flags().StringSliceVar(&datasets, "datasets", nil, "Dataset name patterns to run (default: all)")
	cmd.Flags().BoolVar(&skipUpload, "skip-upload", false, "Skip the configure and upload stages")
	cmd.Flags().BoolVar(&skipSearch, "skip-search", false, "Skip the search stage")
	cmd.Flags().BoolVar(&skipExists, "skip-if-exists", false, "Skip stages whose result artifacts already exist")
	cmd.Flags().BoolVar(&skipConf, "skip-configure", false, "Upload without recreating the collection")
	cmd.Flags().BoolVar(&dropCaches, "drop-caches", false, "Flush the OS page cache before each search configuration")
	cmd.Flags().BoolVar(&checkLoaded, "check-loaded", false, "Only connect and wait for collection availability, then exit")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Retain per-request latency and precision samples in artifacts")

	return cmd
}

func runPair(
	ctx context.Context,
	cfg config.Config,
	out *output.Writer,
	store *results.Store,
	flush func(ctx context.Context) error,
	exp config.Experiment,
	ds dataset.Config,
	opts runner.Options,
) error {
	spec := exp.Spec()
	spec.RecoveryPollInterval = cfg.RecoveryPollInterval.Std()
	set, err := backend.Open(ctx, spec)
	if err != nil {
		return fmt.Errorf("open backend %s: %w", exp.Engine, err)
	}
	run := runner.New(runner.Config{
		Experiment: exp.Name,
		Engine:     exp.Engine,
		Set:        set,
		Store:      store,
		Detailed:   cfg.DetailedResults,
		DropCaches: flush,
		Out:        out,
	})
	defer func() { _ = run.Close() }()

	return run.Run(ctx, dataset.New(ds), opts)
}

// runCheckLoaded connects to each matching engine and waits until its
// collection is available, for use before a measurement on reused volumes.
func runCheckLoaded(ctx context.Context, cfg config.Config, out *output.Writer, experiments map[string]config.Experiment, names []string) error {
	for _, name := range names {
		exp := experiments[name]
		spec := exp.Spec()
		spec.RecoveryPollInterval = cfg.RecoveryPollInterval.Std()
		set, err := backend.Open(ctx, spec)
		if err != nil {
			return fmt.Errorf("open backend %s: %w", exp.Engine, err)
		}
		waiter, ok := set.Uploader.(backend.LoadWaiter)
		if !ok {
			_ = set.Close()
			return fmt.Errorf("engine %s cannot report collection availability", exp.Engine)
		}
		out.Printf("Waiting for %s collection to become available...", name)
		err = waiter.EnsureLoaded(ctx)
		_ = set.Close()
		if err != nil {
			return fmt.Errorf("collection for %s not available: %w", name, err)
		}
		out.Successf("Collection for %s is loaded", name)
	}
	return nil
}
