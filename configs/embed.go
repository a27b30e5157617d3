// Package configs provides embedded configuration templates for vdbbench.
//
// Templates are embedded at build time with go:embed so `vdbbench init` can
// scaffold a working benchmark directory from any installation, source build
// or binary release alike.
//
// Template files:
//   - config.example.yaml: tool-level settings (directories, timeouts)
//   - datasets.example.yaml: dataset definitions (files, metric, dimension)
//   - experiments.example.yaml: engine configurations to benchmark
package configs

import _ "embed"

// ConfigTemplate is the tool-level configuration template.
// Written by `vdbbench init` as config.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string

// DatasetsTemplate is the dataset definitions template.
// Written by `vdbbench init` as configurations/datasets.yaml.
//
//go:embed datasets.example.yaml
var DatasetsTemplate string

// ExperimentsTemplate is the experiment definitions template.
// Written by `vdbbench init` as configurations/experiments.yaml.
//
//go:embed experiments.example.yaml
var ExperimentsTemplate string
