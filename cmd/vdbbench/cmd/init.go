package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Jangseon-park/vector-db-benchmark/configs"
	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a benchmark directory",
		Long: `Create a working benchmark directory from embedded templates.

This command writes:
  config.yaml                       tool-level settings
  configurations/datasets.yaml      dataset definitions
  configurations/experiments.yaml   engine configurations

Existing files are left untouched unless --force is given. Edit the
generated files, place datasets and docker compose server directories where
config.yaml points, then run 'vdbbench doctor' to verify the host.`,
		Example: `  # Scaffold in the current directory
  vdbbench init

  # Scaffold a dedicated directory
  vdbbench init bench/milvus`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(output.New(cmd.OutOrStdout()), dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration files")

	return cmd
}

func runInit(out *output.Writer, dir string, force bool) error {
	if err := os.MkdirAll(filepath.Join(dir, "configurations"), 0o755); err != nil {
		return err
	}

	files := []struct {
		path string
		body string
	}{
		{filepath.Join(dir, "config.yaml"), configs.ConfigTemplate},
		{filepath.Join(dir, "configurations", "datasets.yaml"), configs.DatasetsTemplate},
		{filepath.Join(dir, "configurations", "experiments.yaml"), configs.ExperimentsTemplate},
	}

	for _, f := range files {
		if !force {
			if _, err := os.Stat(f.path); err == nil {
				out.Printf("Keeping existing %s", f.path)
				continue
			}
		}
		if err := os.WriteFile(f.path, []byte(f.body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		out.Printf("Wrote %s", f.path)
	}

	out.Printf("Next: edit the configurations, then run 'vdbbench doctor'")
	return nil
}
