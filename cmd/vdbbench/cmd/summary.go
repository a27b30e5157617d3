package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Jangseon-park/vector-db-benchmark/internal/trace"
)

func newSummaryCmd() *cobra.Command {
	var csvPath string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize collected trace files into a count matrix",
		Long: `Parse every trace text file under the profile directory, count events by
process and event kind, and produce one row per (dataset, size, engine,
iteration). Columns that are zero in any row are dropped so the table only
shows activity common to every run.

Writes a CSV next to the traces and prints the table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			summary, err := trace.Summarize(cfg.ProfileDir)
			if err != nil {
				return err
			}

			if csvPath == "" {
				csvPath = filepath.Join(cfg.ProfileDir, "summary.csv")
			}
			f, err := os.Create(csvPath)
			if err != nil {
				return fmt.Errorf("create summary csv: %w", err)
			}
			if err := summary.WriteCSV(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			summary.RenderTable(cmd.OutOrStdout())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nSummary written to %s\n", csvPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV output path (default: {profile_dir}/summary.csv)")

	return cmd
}
