package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "results", cfg.ResultsDir)
	assert.Equal(t, "profile_results", cfg.ProfileDir)
	assert.Equal(t, 60*time.Second, cfg.StartTimeout.Std())
	assert.Equal(t, 10*time.Second, cfg.RecoveryPollInterval.Std())
	assert.False(t, cfg.DetailedResults)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
results_dir: /data/results
detailed_results: true
start_timeout: 2m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/results", cfg.ResultsDir)
	assert.True(t, cfg.DetailedResults)
	assert.Equal(t, 2*time.Minute, cfg.StartTimeout.Std())
	// Untouched fields keep their defaults.
	assert.Equal(t, "profile_results", cfg.ProfileDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDetailedResults_EnvOverride(t *testing.T) {
	t.Setenv(EnvDetailedResults, "1")
	assert.True(t, Default().DetailedResults)

	t.Setenv(EnvDetailedResults, "false")
	assert.False(t, Default().DetailedResults)

	t.Setenv(EnvDetailedResults, "not-a-bool")
	assert.False(t, Default().DetailedResults, "unparseable values are ignored")
}

func TestLoadDatasets(t *testing.T) {
	path := writeFile(t, "datasets.yaml", `
- name: glove-100
  distance: cosine
  vector_size: 100
  path: data/glove.jsonl
  queries_path: data/glove-queries.jsonl
- name: sift-128
  distance: l2
  vector_size: 128
  path: data/sift.jsonl
  queries_path: data/sift-queries.jsonl
`)
	datasets, err := LoadDatasets(path)
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "cosine", datasets["glove-100"].Distance)
	assert.Equal(t, 128, datasets["sift-128"].VectorSize)
}

func TestLoadDatasets_Duplicate(t *testing.T) {
	path := writeFile(t, "datasets.yaml", `
- name: dup
  distance: cosine
  vector_size: 8
- name: dup
  distance: l2
  vector_size: 8
`)
	_, err := LoadDatasets(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadDatasets_Invalid(t *testing.T) {
	path := writeFile(t, "datasets.yaml", `
- name: bad
  distance: hamming
  vector_size: 8
`)
	_, err := LoadDatasets(path)
	assert.Error(t, err)
}

func TestLoadExperiments(t *testing.T) {
	path := writeFile(t, "experiments.yaml", `
- name: milvus-hnsw-16
  engine: milvus
  connection_params:
    address: localhost:19530
  collection_params:
    m: 16
  upload_params:
    batch_size: 64
  search_params:
    - top: 10
    - top: 100
`)
	experiments, err := LoadExperiments(path)
	require.NoError(t, err)
	require.Len(t, experiments, 1)

	exp := experiments["milvus-hnsw-16"]
	assert.Equal(t, "milvus", exp.Engine)
	require.Len(t, exp.SearchParams, 2)
	assert.Equal(t, 10, exp.SearchParams[0].GetInt("top", 0))

	spec := exp.Spec()
	assert.Equal(t, "milvus-hnsw-16", spec.Experiment)
	assert.Equal(t, "localhost:19530", spec.ConnectionParams.GetString("address", ""))
}

func TestLoadExperiments_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", "- engine: milvus\n  search_params:\n    - top: 10\n"},
		{"missing engine", "- name: x\n  search_params:\n    - top: 10\n"},
		{"no search params", "- name: x\n  engine: milvus\n"},
		{"duplicate", "- name: x\n  engine: milvus\n  search_params:\n    - top: 1\n- name: x\n  engine: milvus\n  search_params:\n    - top: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "experiments.yaml", tt.body)
			_, err := LoadExperiments(path)
			assert.Error(t, err)
		})
	}
}
