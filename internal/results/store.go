// Package results persists benchmark measurements as append-only JSON
// artifacts. Artifacts are immutable once written; a re-run supersedes them
// with a new timestamped file rather than editing in place.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// timestampLayout matches the artifact filename convention
// {experiment}-{dataset}-{stage}-{YYYY-MM-DD-HH-MM-SS}.json.
const timestampLayout = "2006-01-02-15-04-05"

// Artifact is the persisted shape of one stage result.
type Artifact struct {
	Params  map[string]any `json:"params"`
	Results map[string]any `json:"results"`
}

// Store writes and lists artifacts under a single results directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// SaveUpload persists an upload-stage artifact and returns its path.
func (s *Store) SaveUpload(experiment, dataset string, params, results map[string]any) (string, error) {
	name := fmt.Sprintf("%s-%s-upload-%s.json", experiment, dataset, s.now().Format(timestampLayout))
	return s.write(name, experiment, dataset, params, results)
}

// SaveSearch persists a search-stage artifact for one search configuration.
func (s *Store) SaveSearch(experiment, dataset string, searchID int, params, results map[string]any) (string, error) {
	name := fmt.Sprintf("%s-%s-search-%d-%s.json", experiment, dataset, searchID, s.now().Format(timestampLayout))
	return s.write(name, experiment, dataset, params, results)
}

func (s *Store) write(name, experiment, dataset string, params, results map[string]any) (string, error) {
	merged := map[string]any{
		"dataset":    dataset,
		"experiment": experiment,
	}
	for k, v := range params {
		merged[k] = v
	}
	body, err := json.MarshalIndent(Artifact{Params: merged, Results: results}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// SearchArtifacts lists every search-stage artifact for the pair, across all
// search configurations.
func (s *Store) SearchArtifacts(experiment, dataset string) ([]string, error) {
	return filepath.Glob(filepath.Join(s.dir, fmt.Sprintf("%s-%s-search-*-*.json", experiment, dataset)))
}

// HasSearchArtifact reports whether at least one artifact exists for the
// given search configuration.
func (s *Store) HasSearchArtifact(experiment, dataset string, searchID int) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir,
		fmt.Sprintf("%s-%s-search-%d-*.json", experiment, dataset, searchID)))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Load reads one artifact back. Used by reporting, not by the run path.
func (s *Store) Load(path string) (*Artifact, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return &a, nil
}
