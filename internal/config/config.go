// Package config loads benchmark configuration: tool-level settings, dataset
// definitions and experiment definitions. All state the runner needs arrives
// through explicit structs built here; nothing is read from ambient globals
// at run time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Jangseon-park/vector-db-benchmark/internal/backend"
	"github.com/Jangseon-park/vector-db-benchmark/internal/dataset"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// as well as plain nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration in the string form ParseDuration accepts.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EnvDetailedResults toggles whether per-record latency and precision samples
// are retained in persisted artifacts. Any value strconv.ParseBool accepts
// as true ("1", "true", ...) enables it.
const EnvDetailedResults = "DETAILED_RESULTS"

// Config is the tool-level configuration handed to constructors.
type Config struct {
	// ResultsDir is where stage artifacts are written.
	ResultsDir string `yaml:"results_dir"`
	// ProfileDir is where trace text files are collected, laid out
	// {dataset}/{size}/{engine}_{iteration}.txt.
	ProfileDir string `yaml:"profile_dir"`
	// ServersRoot holds per-engine docker compose directories, laid out
	// {engine-dir}/{size}/docker-compose.yaml with a volumes/ side directory.
	ServersRoot string `yaml:"servers_root"`
	// DatasetsFile and ExperimentsFile point at the YAML definitions.
	DatasetsFile    string `yaml:"datasets_file"`
	ExperimentsFile string `yaml:"experiments_file"`

	// DetailedResults retains latency/precision samples in artifacts.
	// Overridden by the DETAILED_RESULTS environment variable.
	DetailedResults bool `yaml:"detailed_results"`

	// DropCaches flushes the OS page cache before each search configuration.
	DropCaches bool `yaml:"drop_caches"`

	// StartTimeout bounds the wait for a container to reach running state.
	StartTimeout Duration `yaml:"start_timeout"`
	// RecoveryPollInterval is the fixed sleep between index/compaction
	// progress probes. The wait itself is unbounded.
	RecoveryPollInterval Duration `yaml:"recovery_poll_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{
		ResultsDir:           "results",
		ProfileDir:           "profile_results",
		ServersRoot:          filepath.Join("engine", "servers"),
		DatasetsFile:         filepath.Join("configurations", "datasets.yaml"),
		ExperimentsFile:      filepath.Join("configurations", "experiments.yaml"),
		StartTimeout:         Duration(60 * time.Second),
		RecoveryPollInterval: Duration(10 * time.Second),
	}
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML config file and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	body, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDetailedResults); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DetailedResults = b
		}
	}
}

// Experiment defines one named engine configuration. Immutable once a run
// starts.
type Experiment struct {
	Name             string           `yaml:"name"`
	Engine           string           `yaml:"engine"`
	ConnectionParams backend.Params   `yaml:"connection_params"`
	CollectionParams backend.Params   `yaml:"collection_params"`
	UploadParams     backend.Params   `yaml:"upload_params"`
	SearchParams     []backend.Params `yaml:"search_params"`
}

// Spec converts the experiment into the backend factory input.
func (e Experiment) Spec() backend.Spec {
	return backend.Spec{
		Experiment:       e.Name,
		Engine:           e.Engine,
		ConnectionParams: e.ConnectionParams,
		CollectionParams: e.CollectionParams,
		UploadParams:     e.UploadParams,
		SearchParams:     e.SearchParams,
	}
}

// LoadDatasets reads dataset definitions and validates each entry.
func LoadDatasets(path string) (map[string]dataset.Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datasets: %w", err)
	}
	var list []dataset.Config
	if err := yaml.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("parse datasets %s: %w", path, err)
	}
	out := make(map[string]dataset.Config, len(list))
	for _, ds := range list {
		if err := ds.Validate(); err != nil {
			return nil, err
		}
		if _, dup := out[ds.Name]; dup {
			return nil, fmt.Errorf("duplicate dataset %q in %s", ds.Name, path)
		}
		out[ds.Name] = ds
	}
	return out, nil
}

// LoadExperiments reads experiment definitions keyed by name.
func LoadExperiments(path string) (map[string]Experiment, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiments: %w", err)
	}
	var list []Experiment
	if err := yaml.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("parse experiments %s: %w", path, err)
	}
	out := make(map[string]Experiment, len(list))
	for _, exp := range list {
		if exp.Name == "" {
			return nil, fmt.Errorf("experiment with empty name in %s", path)
		}
		if exp.Engine == "" {
			return nil, fmt.Errorf("experiment %q: engine is required", exp.Name)
		}
		if len(exp.SearchParams) == 0 {
			return nil, fmt.Errorf("experiment %q: at least one search_params entry is required", exp.Name)
		}
		if _, dup := out[exp.Name]; dup {
			return nil, fmt.Errorf("duplicate experiment %q in %s", exp.Name, path)
		}
		out[exp.Name] = exp
	}
	return out, nil
}
