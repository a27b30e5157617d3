// Package runner sequences one (experiment, dataset) pair through the
// Configure, Upload and Search stages, using the result store to decide what
// is already done.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
	"github.com/Jangseon-park/vector-db-benchmark/internal/results"
)

// Options control which stages run and how skipping behaves.
type Options struct {
	// SkipUpload skips Configure and Upload. The caller decides this, e.g.
	// when reused volumes already hold the data.
	SkipUpload bool
	// SkipSearch skips the search stage entirely.
	SkipSearch bool
	// SkipIfExists enables artifact-based resumability: the whole run is
	// skipped when every search configuration already has an artifact, and
	// individual search configurations are skipped when theirs exists.
	SkipIfExists bool
	// SkipConfigure skips the Configure stage while still uploading.
	SkipConfigure bool
}

// Runner drives one experiment against one engine backend.
type Runner struct {
	experiment string
	engine     string
	set        *backend.Set
	store      *results.Store

	// detailed retains latency/precision samples in artifacts.
	detailed bool
	// dropCaches, when set, flushes the OS page cache before each search
	// configuration. Failure is logged, never fatal.
	dropCaches func(ctx context.Context) error

	log *slog.Logger
	out *output.Writer

	closeOnce sync.Once
	closeErr  error
}

// Config assembles a Runner.
type Config struct {
	Experiment string
	Engine     string
	Set        *backend.Set
	Store      *results.Store
	Detailed   bool
	// DropCaches is optional; nil disables cold-cache flushing.
	DropCaches func(ctx context.Context) error
	Log        *slog.Logger
	Out        *output.Writer
}

// New builds a Runner from explicit configuration.
func New(cfg Config) *Runner {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = output.Discard()
	}
	return &Runner{
		experiment: cfg.Experiment,
		engine:     cfg.Engine,
		set:        cfg.Set,
		store:      cfg.Store,
		detailed:   cfg.Detailed,
		dropCaches: cfg.DropCaches,
		log:        cfg.Log,
		out:        cfg.Out,
	}
}

// Run executes the pipeline for one dataset. A fully-measured pair (every
// search configuration already has an artifact) is a no-op when
// SkipIfExists is set; the check runs before upload.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset, opts Options) error {
	execParams := r.set.Configurator.ExecutionParams(ds.Config.Distance, ds.Config.VectorSize)
	normalize, _ := execParams["normalize"].(bool)
	reader := ds.Reader(normalize)

	if opts.SkipIfExists {
		existing, err := r.store.SearchArtifacts(r.experiment, ds.Config.Name)
		if err != nil {
			return fmt.Errorf("list search artifacts: %w", err)
		}
		if len(existing) == len(r.set.Searchers) {
			r.out.Printf("Skipping run for %s since it already ran %d search configs previously",
				r.experiment, len(r.set.Searchers))
			return nil
		}
	}

	if !opts.SkipUpload {
		if err := r.upload(ctx, ds, reader, opts.SkipConfigure); err != nil {
			return err
		}
	}

	if !opts.SkipSearch {
		if err := r.search(ctx, ds, reader, opts); err != nil {
			return err
		}
	}

	r.out.Stage("Done")
	r.out.Printf("Results saved to: %s", r.store.Dir())
	return nil
}

func (r *Runner) upload(ctx context.Context, ds *dataset.Dataset, reader dataset.Reader, skipConfigure bool) error {
	if !skipConfigure {
		r.out.Stage("Configure")
		if err := r.set.Configurator.Configure(ctx, ds.Config); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
	}

	r.out.Stage("Upload")
	records, err := reader.Records()
	if err != nil {
		return err
	}
	defer func() { _ = records.Close() }()

	stats, err := r.set.Uploader.Upload(ctx, ds.Config.Distance, records)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if !r.detailed {
		delete(stats, backend.StatLatencies)
	}

	params := backend.Merge(r.set.Uploader.UploadParams(), r.set.Configurator.CollectionParams())
	params["engine"] = r.engine
	if _, err := r.store.SaveUpload(r.experiment, ds.Config.Name, params, stats); err != nil {
		return err
	}
	return nil
}

func (r *Runner) search(ctx context.Context, ds *dataset.Dataset, reader dataset.Reader, opts Options) error {
	r.out.Stage("Search")

	// After a restart with reused volumes the collection may still be
	// unavailable. When the uploader can wait for it, do so once before the
	// first search configuration; a failed wait is a warning, the searches
	// get to fail on their own.
	if opts.SkipUpload {
		if waiter, ok := r.set.Uploader.(backend.LoadWaiter); ok {
			r.out.Printf("Upload skipped - initializing uploader client and waiting for collection to become available...")
			if initer, ok := r.set.Uploader.(backend.ClientIniter); ok {
				if err := initer.InitClient(ctx); err != nil {
					r.log.Debug("client re-init before load wait failed", "error", err)
				}
			}
			if err := waiter.EnsureLoaded(ctx); err != nil {
				r.out.Warningf("waiting for collection availability failed: %v", err)
				r.log.Warn("load wait failed, proceeding", "experiment", r.experiment, "error", err)
			} else {
				r.out.Printf("Collection is available - proceeding with search")
			}
		}
	}

	for searchID, searcher := range r.set.Searchers {
		if opts.SkipIfExists {
			exists, err := r.store.HasSearchArtifact(r.experiment, ds.Config.Name, searchID)
			if err != nil {
				return fmt.Errorf("check search artifact %d: %w", searchID, err)
			}
			if exists {
				r.out.Printf("Skipping search %d as it already exists", searchID)
				continue
			}
		}

		if r.dropCaches != nil {
			if err := r.dropCaches(ctx); err != nil {
				r.out.Warningf("page cache drop failed: %v", err)
				r.log.Warn("page cache drop failed", "error", err)
			}
		}

		queries, err := reader.Queries()
		if err != nil {
			return err
		}
		stats, err := searcher.SearchAll(ctx, ds.Config.Distance, queries)
		_ = queries.Close()
		if err != nil {
			return fmt.Errorf("search config %d: %w", searchID, err)
		}
		if !r.detailed {
			delete(stats, backend.StatLatencies)
			delete(stats, backend.StatPrecisions)
		}

		params := backend.Params{"engine": r.engine}
		params = backend.Merge(params, searcher.SearchParams())
		if _, err := r.store.SaveSearch(r.experiment, ds.Config.Name, searchID, params, stats); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the configurator, uploader and every searcher exactly once.
// Closing a backend that is already disconnected must not fail, so close
// errors are collected, logged and returned but never panic.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		for _, c := range r.closers() {
			if err := c(); err != nil {
				r.log.Warn("backend close failed", "experiment", r.experiment, "error", err)
				if r.closeErr == nil {
					r.closeErr = err
				}
			}
		}
	})
	return r.closeErr
}

func (r *Runner) closers() []func() error {
	fns := []func() error{r.set.Uploader.Close, r.set.Configurator.Close}
	for _, s := range r.set.Searchers {
		fns = append(fns, s.Close)
	}
	return fns
}
