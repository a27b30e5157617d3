//go:build ignore

// Command generate-dataset produces a synthetic JSON-lines vector dataset
// with brute-force ground truth, sized for local pipeline testing.
// Usage: go run scripts/generate-dataset.go -records 10000 -queries 100 -dim 64 -output datasets/synthetic
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
)

var (
	numRecords = flag.Int("records", 10000, "Number of records to generate")
	numQueries = flag.Int("queries", 100, "Number of queries to generate")
	dim        = flag.Int("dim", 64, "Vector dimensionality")
	neighbors  = flag.Int("neighbors", 100, "Ground-truth neighbors per query")
	distance   = flag.String("distance", "cosine", "Distance metric: cosine, dot or l2")
	outputDir  = flag.String("output", "datasets/synthetic", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

type record struct {
	ID     int64     `json:"id"`
	Vector []float32 `json:"vector"`
}

type query struct {
	Vector    []float32 `json:"vector"`
	Neighbors []int64   `json:"neighbors"`
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		return err
	}

	records := make([]record, *numRecords)
	for i := range records {
		records[i] = record{ID: int64(i), Vector: randomVector(rng, *dim)}
	}
	if err := writeJSONL(filepath.Join(*outputDir, "records.jsonl"), len(records), func(i int) any {
		return records[i]
	}); err != nil {
		return err
	}

	queries := make([]query, *numQueries)
	for i := range queries {
		v := randomVector(rng, *dim)
		queries[i] = query{Vector: v, Neighbors: nearest(records, v, *neighbors)}
	}
	if err := writeJSONL(filepath.Join(*outputDir, "queries.jsonl"), len(queries), func(i int) any {
		return queries[i]
	}); err != nil {
		return err
	}

	fmt.Printf("Generated %d records and %d queries (dim=%d, distance=%s) in %s\n",
		*numRecords, *numQueries, *dim, *distance, *outputDir)
	fmt.Printf("Dataset entry:\n\n")
	fmt.Printf("- name: synthetic-%d-%s\n", *dim, *distance)
	fmt.Printf("  distance: %s\n", *distance)
	fmt.Printf("  vector_size: %d\n", *dim)
	fmt.Printf("  path: %s\n", filepath.Join(*outputDir, "records.jsonl"))
	fmt.Printf("  queries_path: %s\n", filepath.Join(*outputDir, "queries.jsonl"))
	return nil
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

// nearest brute-forces the k closest record IDs to v under the chosen metric.
func nearest(records []record, v []float32, k int) []int64 {
	type scored struct {
		id    int64
		score float64
	}
	scores := make([]scored, len(records))
	for i, r := range records {
		scores[i] = scored{id: r.ID, score: dist(r.Vector, v)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score < scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	ids := make([]int64, k)
	for i := 0; i < k; i++ {
		ids[i] = scores[i].id
	}
	return ids
}

// dist returns a smaller-is-closer score for the selected metric.
func dist(a, b []float32) float64 {
	var dot, na, nb, l2 float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		d := x - y
		l2 += d * d
	}
	switch *distance {
	case "l2":
		return math.Sqrt(l2)
	case "dot":
		return -dot
	default: // cosine
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
}

func writeJSONL(path string, n int, item func(i int) any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		if err := enc.Encode(item(i)); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
