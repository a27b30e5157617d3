package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
)

type searcher struct {
	conn   *conn
	params backend.Params
}

// SearchAll runs every query through one search configuration, recording
// per-query latency and, when ground truth is present, precision.
func (s *searcher) SearchAll(ctx context.Context, _ string, queries dataset.QueryIterator) (backend.Stats, error) {
	cli, err := s.conn.client(ctx)
	if err != nil {
		return nil, err
	}

	top := s.params.GetInt("top", 10)
	start := time.Now()
	var (
		latencies  []float64
		precisions []float64
	)
	count := 0

	for queries.Next() {
		q := queries.Query()
		t0 := time.Now()
		resultSets, err := cli.Search(ctx, milvusclient.NewSearchOption(CollectionName, top,
			[]entity.Vector{entity.FloatVector(q.Vector)}).WithANNSField(vectorField))
		if err != nil {
			return nil, fmt.Errorf("milvus: search: %w", err)
		}
		latencies = append(latencies, time.Since(t0).Seconds())
		if len(q.Neighbors) > 0 && len(resultSets) > 0 {
			precisions = append(precisions, resultPrecision(resultSets[0], q.Neighbors, top))
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
func (s *searcher) Close() error                 { return s.conn.close() }

func resultPrecision(rs milvusclient.ResultSet, expected []int64, top int) float64 {
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
	for i := 0; i < rs.IDs.Len(); i++ {
		id, err := rs.IDs.GetAsInt64(i)
		if err != nil {
			continue
		}
		if _, ok := want[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(top)
}


