package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := Config{Name: "glove", Distance: DistanceCosine, VectorSize: 100}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty name", Config{Distance: DistanceCosine, VectorSize: 100}},
		{"zero vector size", Config{Name: "x", Distance: DistanceCosine}},
		{"unknown distance", Config{Name: "x", Distance: "hamming", VectorSize: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestJSONLReader_Records(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.jsonl",
		`{"id": 1, "vector": [1.0, 0.0]}

{"id": 2, "vector": [0.0, 1.0], "metadata": {"tag": "b"}}
`)
	cfg := Config{Name: "tiny", Distance: DistanceCosine, VectorSize: 2, Path: records}

	reader := New(cfg).Reader(false)
	it, err := reader.Records()
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	var got []Record
	for it.Next() {
		got = append(got, it.Record())
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 2, "blank lines are skipped")
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, []float32{0, 1}, got[1].Vector)
	assert.Equal(t, "b", got[1].Metadata["tag"])
}

func TestJSONLReader_Restartable(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.jsonl", `{"id": 7, "vector": [1.0]}`+"\n")
	cfg := Config{Name: "tiny", Distance: DistanceL2, VectorSize: 1, Path: records}
	reader := New(cfg).Reader(false)

	for pass := 0; pass < 2; pass++ {
		it, err := reader.Records()
		require.NoError(t, err)
		require.True(t, it.Next(), "pass %d should yield the record again", pass)
		assert.Equal(t, int64(7), it.Record().ID)
		assert.False(t, it.Next())
		require.NoError(t, it.Err())
		require.NoError(t, it.Close())
	}
}

func TestJSONLReader_NormalizesQueries(t *testing.T) {
	dir := t.TempDir()
	queries := writeFile(t, dir, "queries.jsonl",
		`{"vector": [3.0, 4.0], "neighbors": [1, 2]}`+"\n")
	cfg := Config{
		Name: "tiny", Distance: DistanceCosine, VectorSize: 2,
		QueriesPath: queries,
	}

	it, err := New(cfg).Reader(true).Queries()
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	require.True(t, it.Next())
	q := it.Query()
	assert.InDelta(t, 0.6, q.Vector[0], 1e-6)
	assert.InDelta(t, 0.8, q.Vector[1], 1e-6)
	assert.Equal(t, []int64{1, 2}, q.Neighbors)
}

func TestJSONLReader_DecodeError(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.jsonl", "not json\n")
	cfg := Config{Name: "bad", Distance: DistanceL2, VectorSize: 1, Path: records}

	it, err := New(cfg).Reader(false).Records()
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	assert.False(t, it.Next())
	assert.Error(t, it.Err())
}

func TestJSONLReader_MissingFile(t *testing.T) {
	cfg := Config{Name: "gone", Distance: DistanceL2, VectorSize: 1, Path: "/does/not/exist"}
	_, err := New(cfg).Reader(false).Records()
	assert.Error(t, err)
}

func TestSliceReader_Restartable(t *testing.T) {
	reader := &SliceReader{
		RecordsData: []Record{{ID: 1, Vector: []float32{1}}},
		QueriesData: []Query{{Vector: []float32{1}}},
	}

	for pass := 0; pass < 2; pass++ {
		it, err := reader.Records()
		require.NoError(t, err)
		require.True(t, it.Next())
		assert.Equal(t, int64(1), it.Record().ID)
		assert.False(t, it.Next())
		require.NoError(t, it.Close())
	}

	qit, err := reader.Queries()
	require.NoError(t, err)
	require.True(t, qit.Next())
	assert.False(t, qit.Next())
}
