// Package sweep iterates the benchmark matrix (datasets x engine configs x
// resource sizes x iterations) and guarantees resource teardown for every
// cell, even when a cell fails partway.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/config"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
	"github.com/Jangseon-park/vector-db-benchmark/internal/results"
	"github.com/Jangseon-park/vector-db-benchmark/internal/runner"
	"github.com/Jangseon-park/vector-db-benchmark/internal/trace"
)

// Lifecycle is the slice of the resource manager the driver needs.
// *lifecycle.Manager satisfies it.
type Lifecycle interface {
	Start(ctx context.Context, size string, clean bool) (existed bool, err error)
	Stop(ctx context.Context, size string) error
	RemoveVolumes(ctx context.Context, size string) error
	WaitForRecovery(ctx context.Context, up backend.Uploader)
}

// Matrix defines the sweep space.
type Matrix struct {
	Datasets    []string
	Experiments []string
	Sizes       []string
	Iterations  int
	// ClearVolumes wipes every size's volumes before each dataset's cells,
	// bounding storage growth across long sweeps.
	ClearVolumes bool
}

// Driver runs the sweep. Cells execute strictly sequentially: the
// benchmark's validity depends on exclusive access to the page cache, the
// disk and the one containerized instance during each measurement.
type Driver struct {
	matrix      Matrix
	manager     Lifecycle
	coordinator *trace.Coordinator
	store       *results.Store
	datasets    map[string]dataset.Config
	experiments map[string]config.Experiment

	profileDir string
	detailed   bool

	// openSet and dropCaches are seams for tests.
	openSet    func(ctx context.Context, spec backend.Spec) (*backend.Set, error)
	dropCaches func(ctx context.Context) error
	// cacheSettle is the fixed delay after a cache drop before load begins.
	cacheSettle time.Duration

	lock *flock.Flock
	log  *slog.Logger
	out  *output.Writer
}

// DriverConfig assembles a Driver.
type DriverConfig struct {
	Matrix      Matrix
	Manager     Lifecycle
	Coordinator *trace.Coordinator
	Store       *results.Store
	Datasets    map[string]dataset.Config
	Experiments map[string]config.Experiment
	ProfileDir  string
	Detailed    bool
	OpenSet     func(ctx context.Context, spec backend.Spec) (*backend.Set, error)
	DropCaches  func(ctx context.Context) error
	CacheSettle time.Duration
	Log         *slog.Logger
	Out         *output.Writer
}

// NewDriver builds a Driver with defaults filled in.
func NewDriver(cfg DriverConfig) *Driver {
	if cfg.OpenSet == nil {
		cfg.OpenSet = backend.Open
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = output.Discard()
	}
	return &Driver{
		matrix:      cfg.Matrix,
		manager:     cfg.Manager,
		coordinator: cfg.Coordinator,
		store:       cfg.Store,
		datasets:    cfg.Datasets,
		experiments: cfg.Experiments,
		profileDir:  cfg.ProfileDir,
		detailed:    cfg.Detailed,
		openSet:     cfg.OpenSet,
		dropCaches:  cfg.DropCaches,
		cacheSettle: cfg.CacheSettle,
		lock:        flock.New(filepath.Join(cfg.ProfileDir, ".sweep.lock")),
		log:         cfg.Log,
		out:         cfg.Out,
	}
}

// Run executes every matrix cell. A failed cell is reported and the sweep
// moves on; only context cancellation stops the whole sweep early.
func (d *Driver) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.profileDir, 0o755); err != nil {
		return err
	}
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("sweep lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another sweep holds %s; measurements need exclusive machine access", d.lock.Path())
	}
	defer func() { _ = d.lock.Unlock() }()

	for _, dsName := range d.matrix.Datasets {
		ds, ok := d.datasets[dsName]
		if !ok {
			return fmt.Errorf("unknown dataset %q", dsName)
		}
		if d.matrix.ClearVolumes {
			for _, size := range d.matrix.Sizes {
				if err := d.manager.RemoveVolumes(ctx, size); err != nil {
					return fmt.Errorf("clear volumes for size %s: %w", size, err)
				}
			}
		}
		for _, expName := range d.matrix.Experiments {
			exp, ok := d.experiments[expName]
			if !ok {
				return fmt.Errorf("unknown experiment %q", expName)
			}
			for _, size := range d.matrix.Sizes {
				for iter := 0; iter < d.matrix.Iterations; iter++ {
					d.out.Printf("Running iteration %d of %d for %s with %s and size %s",
						iter, d.matrix.Iterations, dsName, expName, size)
					if err := d.runCell(ctx, ds, exp, size, iter); err != nil {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						d.out.Errorf("cell %s/%s/%s/%d failed: %v", dsName, expName, size, iter, err)
						d.log.Error("sweep cell failed",
							"dataset", dsName, "experiment", expName, "size", size, "iteration", iter,
							"error", err)
					}
				}
			}
		}
	}
	return nil
}

// runCell executes one matrix cell. Stop runs in the deferred block so any
// failure after Start still releases the containerized resource; a Stop
// failure is downgraded to a warning so it cannot mask the cell's own error
// or halt the sweep.
func (d *Driver) runCell(ctx context.Context, ds dataset.Config, exp config.Experiment, size string, iter int) (err error) {
	existed, err := d.manager.Start(ctx, size, false)
	defer func() {
		if stopErr := d.manager.Stop(context.WithoutCancel(ctx), size); stopErr != nil {
			d.out.Warningf("stopping size %s: %v", size, stopErr)
			d.log.Warn("cell teardown failed", "size", size, "error", stopErr)
		}
	}()
	if err != nil {
		return err
	}

	set, err := d.openSet(ctx, exp.Spec())
	if err != nil {
		return fmt.Errorf("open backend %s: %w", exp.Engine, err)
	}
	run := runner.New(runner.Config{
		Experiment: exp.Name,
		Engine:     exp.Engine,
		Set:        set,
		Store:      d.store,
		Detailed:   d.detailed,
		DropCaches: d.dropCaches,
		Log:        d.log,
		Out:        d.out,
	})
	defer func() { _ = run.Close() }()

	data := dataset.New(ds)

	// Volume existence alone decides whether to upload. Search artifacts
	// from an earlier cell must not suppress it: they are keyed by
	// experiment and dataset, not by resource size.
	if !existed {
		if err := d.flushCaches(ctx); err != nil {
			return err
		}
		if err := run.Run(ctx, data, runner.Options{SkipSearch: true}); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
	}

	d.manager.WaitForRecovery(ctx, set.Uploader)

	if err := d.flushCaches(ctx); err != nil {
		return err
	}

	outputPath := filepath.Join(d.profileDir, ds.Name, size, fmt.Sprintf("%s_%d.txt", exp.Name, iter))
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return d.coordinator.RunWithProfiling(ctx, outputPath, func(ctx context.Context) error {
		return run.Run(ctx, data, runner.Options{SkipUpload: true})
	})
}

// flushCaches drops the page cache and lets the system settle. Failure to
// drop is a warning; the measurement proceeds warm.
func (d *Driver) flushCaches(ctx context.Context) error {
	if d.dropCaches == nil {
		return nil
	}
	d.out.Printf("Flushing system cache...")
	if err := d.dropCaches(ctx); err != nil {
		d.out.Warningf("page cache drop failed: %v", err)
		d.log.Warn("page cache drop failed", "error", err)
	}
	if d.cacheSettle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cacheSettle):
		}
	}
	return nil
}
