package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jangseon-park/vector-db-benchmark/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check host requirements for running benchmarks",
		Long: `Run host diagnostics to verify benchmarks can execute.

Checks:
  - docker binary and compose plugin
  - sudo (container lifecycle, cache drops and tracing run under it)
  - perf (optional; only the perf tracer needs it)
  - /proc/sys/vm/drop_caches (optional; cold-cache measurements need it)
  - Disk space under the results directory (10 GiB minimum)
  - Available memory (2 GiB minimum)
  - File descriptor limit (1024 minimum)`,
		Example: `  # Run diagnostics
  vdbbench doctor

  # Machine-readable output for scripting
  vdbbench doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			results := checker.RunAll(cmd.Context(), cfg.ResultsDir)

			if jsonOutput {
				payload := struct {
					Status string                  `json:"status"`
					Checks []preflight.CheckResult `json:"checks"`
				}{
					Status: checker.SummaryStatus(results),
					Checks: results,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(payload); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("environment check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
