// Package local implements the engine capability set in-process on an HNSW
// graph. It exercises the full configure/upload/search pipeline without any
// containerized instance, and backs the orchestration tests.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
)

// Engine identifier used in experiment configs.
const Name = "local"

func init() {
	backend.Register(Name, New)
}

// engine is the shared in-process index all capabilities of one set drive.
type engine struct {
	mu         sync.Mutex
	graph      *hnsw.Graph[int64]
	vectorSize int
	configured bool
}

// New builds the local capability set.
func New(_ context.Context, spec backend.Spec) (*backend.Set, error) {
	e := &engine{}
	set := &backend.Set{
		Configurator: &configurator{engine: e, collection: spec.CollectionParams},
		Uploader:     &uploader{engine: e, params: spec.UploadParams},
	}
	for _, sp := range spec.SearchParams {
		set.Searchers = append(set.Searchers, &searcher{engine: e, params: sp})
	}
	return set, nil
}

type configurator struct {
	engine     *engine
	collection backend.Params
}

func (c *configurator) Configure(_ context.Context, ds dataset.Config) error {
	graph := hnsw.NewGraph[int64]()
	switch ds.Distance {
	case dataset.DistanceL2:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = c.collection.GetInt("m", 16)
	graph.EfSearch = c.collection.GetInt("ef_search", 100)
	graph.Ml = 0.25

	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.engine.graph = graph
	c.engine.vectorSize = ds.VectorSize
	c.engine.configured = true
	return nil
}

func (c *configurator) ExecutionParams(distance string, _ int) backend.Params {
	return backend.Params{"normalize": distance == dataset.DistanceCosine}
}

func (c *configurator) CollectionParams() backend.Params { return c.collection }
func (c *configurator) Close() error                     { return nil }

type uploader struct {
	engine *engine
	params backend.Params
}

func (u *uploader) Upload(ctx context.Context, _ string, records dataset.RecordIterator) (backend.Stats, error) {
	u.engine.mu.Lock()
	defer u.engine.mu.Unlock()
	if !u.engine.configured {
		return nil, fmt.Errorf("local: upload before configure")
	}

	start := time.Now()
	var latencies []float64
	count := 0
	for records.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := records.Record()
		if len(rec.Vector) != u.engine.vectorSize {
			return nil, fmt.Errorf("local: record %d has %d dims, want %d", rec.ID, len(rec.Vector), u.engine.vectorSize)
		}
		t0 := time.Now()
		u.engine.graph.Add(hnsw.MakeNode(rec.ID, rec.Vector))
		latencies = append(latencies, time.Since(t0).Seconds())
		count++
	}
	if err := records.Err(); err != nil {
		return nil, err
	}
	return backend.Stats{
		"total_time":          time.Since(start).Seconds(),
		"count":               count,
		backend.StatLatencies: latencies,
	}, nil
}

func (u *uploader) UploadParams() backend.Params { return u.params }
func (u *uploader) Close() error                 { return nil }

type searcher struct {
	engine *engine
	params backend.Params
}

func (s *searcher) SearchAll(ctx context.Context, _ string, queries dataset.QueryIterator) (backend.Stats, error) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if !s.engine.configured {
		return nil, fmt.Errorf("local: search before configure")
	}

	top := s.params.GetInt("top", 10)
	start := time.Now()
	var (
		latencies  []float64
		precisions []float64
	)
	count := 0
	for queries.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q := queries.Query()
		t0 := time.Now()
		nodes := s.engine.graph.Search(q.Vector, top)
		latencies = append(latencies, time.Since(t0).Seconds())
		if len(q.Neighbors) > 0 {
			precisions = append(precisions, precision(nodes, q.Neighbors, top))
		}
		count++
	}
	if err := queries.Err(); err != nil {
		return nil, err
	}

	total := time.Since(start).Seconds()
	stats := backend.Stats{
		"total_time":          total,
		"count":               count,
		"mean_time":           backend.Mean(latencies),
		"p95_time":            backend.Percentile(latencies, 0.95),
		backend.StatLatencies: latencies,
	}
	if total > 0 {
		stats["rps"] = float64(count) / total
	}
	if len(precisions) > 0 {
		stats["mean_precisions"] = backend.Mean(precisions)
		stats[backend.StatPrecisions] = precisions
	}
	return stats, nil
}

func (s *searcher) SearchParams() backend.Params { return s.params }
func (s *searcher) Close() error                 { return nil }

func precision(nodes []hnsw.Node[int64], expected []int64, top int) float64 {
	if top > len(expected) {
		top = len(expected)
	}
	if top == 0 {
		return 0
	}
	want := make(map[int64]struct{}, top)
	for _, id := range expected[:top] {
		want[id] = struct{}{}
	}
	hits := 0
	for _, n := range nodes {
		if _, ok := want[n.Key]; ok {
			hits++
		}
	}
	return float64(hits) / float64(top)
}


