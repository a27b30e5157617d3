// Package backend defines the capability set every supported vector-search
// engine implements: Configurator, Uploader and Searcher, plus optional
// sub-capabilities detected by type assertion.
package backend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
)

// Params carries engine-specific key/value parameters. Params maps are merged
// into persisted artifact metadata, so keys should be stable, JSON-friendly
// names.
type Params map[string]any

// Stats carries the measurements a stage produced. The runner strips the
// high-volume keys ("latencies", "precisions") before persisting unless
// detailed-results mode is on.
type Stats map[string]any

// High-volume Stats keys subject to stripping.
const (
	StatLatencies  = "latencies"
	StatPrecisions = "precisions"
)

// Configurator prepares the engine's collection for an experiment.
// Configure is cheap and re-runnable; it carries no idempotency of its own.
type Configurator interface {
	Configure(ctx context.Context, ds dataset.Config) error
	// ExecutionParams reports run-wide parameters derived from the dataset,
	// such as whether vectors must be normalized before upload.
	ExecutionParams(distance string, vectorSize int) Params
	// CollectionParams reports the collection settings merged into upload
	// artifact metadata.
	CollectionParams() Params
	Close() error
}

// Uploader bulk-loads records into the engine.
type Uploader interface {
	Upload(ctx context.Context, distance string, records dataset.RecordIterator) (Stats, error)
	UploadParams() Params
	Close() error
}

// Searcher runs one search configuration against the engine.
type Searcher interface {
	SearchAll(ctx context.Context, distance string, queries dataset.QueryIterator) (Stats, error)
	SearchParams() Params
	Close() error
}

// LoadWaiter is the optional capability of blocking until the engine's
// collection is queryable again, e.g. after a server restart with reused
// volumes. Backends that don't implement it proceed straight to searching.
type LoadWaiter interface {
	EnsureLoaded(ctx context.Context) error
}

// ClientIniter is the optional capability of re-establishing the backend
// connection. The runner calls it best-effort before EnsureLoaded; failures
// are swallowed there.
type ClientIniter interface {
	InitClient(ctx context.Context) error
}

// Recoverer is the optional capability of waiting out asynchronous
// post-restart recovery: flush pending writes, then block until index build
// and compaction have settled.
type Recoverer interface {
	WaitForRecovery(ctx context.Context) error
}

// Set bundles the capabilities one experiment drives.
type Set struct {
	Configurator Configurator
	Uploader     Uploader
	Searchers    []Searcher
}

// Close releases every capability in the set, returning the first failure.
func (s *Set) Close() error {
	var first error
	collect := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	collect(s.Uploader.Close())
	collect(s.Configurator.Close())
	for _, sr := range s.Searchers {
		collect(sr.Close())
	}
	return first
}

// Factory builds a capability set from experiment parameters.
type Factory func(ctx context.Context, spec Spec) (*Set, error)

// Spec is the engine-facing slice of an experiment configuration.
type Spec struct {
	Experiment       string
	Engine           string
	ConnectionParams Params
	CollectionParams Params
	UploadParams     Params
	SearchParams     []Params

	// RecoveryPollInterval paces post-restart recovery probes in backends
	// that implement Recoverer. Zero means the backend's default.
	RecoveryPollInterval time.Duration
}

var factories = map[string]Factory{}

// Register installs a factory under an engine identifier. Called from
// implementation package init functions.
func Register(engine string, f Factory) {
	if _, dup := factories[engine]; dup {
		panic(fmt.Sprintf("backend: duplicate registration for %q", engine))
	}
	factories[engine] = f
}

// Open builds the capability set for the named engine.
func Open(ctx context.Context, spec Spec) (*Set, error) {
	f, ok := factories[spec.Engine]
	if !ok {
		return nil, fmt.Errorf("backend: unknown engine %q (have %v)", spec.Engine, Engines())
	}
	return f(ctx, spec)
}

// Engines lists registered engine identifiers, sorted.
func Engines() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetString reads a string parameter with a default.
func (p Params) GetString(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// GetInt reads an integer parameter with a default. YAML and JSON decoding
// may deliver numbers as int, int64 or float64.
func (p Params) GetInt(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Merge returns a new Params with b's entries layered over a's.
func Merge(a, b Params) Params {
	out := make(Params, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
