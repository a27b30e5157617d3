// Package dataset defines the dataset boundary of the benchmark: named vector
// collections with a distance metric, read through restartable lazy iterators.
// Re-opening a reader re-derives the same sequence; no state is carried
// between reads.
package dataset

import (
	"fmt"
	"math"
)

// Distance metric identifiers used by dataset and engine configs.
const (
	DistanceCosine = "cosine"
	DistanceDot    = "dot"
	DistanceL2     = "l2"
)

// Config describes one benchmark dataset.
type Config struct {
	Name       string `yaml:"name"`
	Distance   string `yaml:"distance"`
	VectorSize int    `yaml:"vector_size"`
	// Path points at the records file; QueriesPath at the query file.
	Path        string `yaml:"path"`
	QueriesPath string `yaml:"queries_path"`
}

// Record is one vector to upload.
type Record struct {
	ID       int64          `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Query is one search probe. Neighbors carries the expected nearest-neighbor
// IDs when the dataset provides ground truth; engines that score precision
// may consult it, the orchestration core does not.
type Query struct {
	Vector    []float32 `json:"vector"`
	Neighbors []int64   `json:"neighbors,omitempty"`
}

// RecordIterator yields records one at a time. Callers must check Err after
// Next returns false and must Close when done.
type RecordIterator interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// QueryIterator yields queries one at a time, same contract as RecordIterator.
type QueryIterator interface {
	Next() bool
	Query() Query
	Err() error
	Close() error
}

// Reader opens record and query sequences. Every call re-opens the source,
// so a Reader can be consumed any number of times.
type Reader interface {
	Records() (RecordIterator, error)
	Queries() (QueryIterator, error)
}

// Dataset couples a Config with the reader that serves its contents.
type Dataset struct {
	Config Config
	open   func(normalize bool) Reader
}

// New builds a Dataset backed by JSON-lines files on disk.
func New(cfg Config) *Dataset {
	return &Dataset{
		Config: cfg,
		open: func(normalize bool) Reader {
			return &jsonlReader{cfg: cfg, normalize: normalize}
		},
	}
}

// NewWithReader builds a Dataset with a caller-supplied reader factory.
// Used by in-process engines and tests.
func NewWithReader(cfg Config, open func(normalize bool) Reader) *Dataset {
	return &Dataset{Config: cfg, open: open}
}

// Reader returns a reader over the dataset. When normalize is true every
// vector is scaled to unit length before being yielded, which cosine-metric
// engines request through their execution params.
func (d *Dataset) Reader(normalize bool) Reader {
	return d.open(normalize)
}

// Validate checks the config for the fields every stage depends on.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("dataset config: name is required")
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("dataset %s: vector_size must be positive", c.Name)
	}
	switch c.Distance {
	case DistanceCosine, DistanceDot, DistanceL2:
		return nil
	default:
		return fmt.Errorf("dataset %s: unknown distance %q", c.Name, c.Distance)
	}
}

// Normalize scales v to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
