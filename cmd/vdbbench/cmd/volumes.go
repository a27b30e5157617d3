package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Jangseon-park/vector-db-benchmark/internal/lifecycle"
	"github.com/Jangseon-park/vector-db-benchmark/internal/output"
)

func newVolumesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volumes",
		Short: "Inspect and clear persisted engine volumes",
	}
	cmd.AddCommand(newVolumesDuCmd())
	cmd.AddCommand(newVolumesClearCmd())
	return cmd
}

func newVolumesDuCmd() *cobra.Command {
	var (
		engineDir string
		sizes     []string
	)

	cmd := &cobra.Command{
		Use:   "du",
		Short: "Report disk usage of the persisted volume directories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(sizes) == 0 {
				sizes, err = discoverSizes(filepath.Join(cfg.ServersRoot, engineDir))
				if err != nil {
					return err
				}
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"SIZE", "VOLUMES", "USAGE"})
			var total uint64
			for _, size := range sizes {
				dir := filepath.Join(cfg.ServersRoot, engineDir, size, "volumes")
				used, err := dirUsage(dir)
				if err != nil {
					if os.IsNotExist(err) {
						t.AppendRow(table.Row{size, dir, "absent"})
						continue
					}
					return err
				}
				total += used
				t.AppendRow(table.Row{size, dir, humanize.Bytes(used)})
			}
			t.AppendFooter(table.Row{"", "total", humanize.Bytes(total)})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&engineDir, "engine-dir", "milvus-single-node", "Server directory under servers root")
	cmd.Flags().StringSliceVar(&sizes, "sizes", nil, "Resource sizes to report (default: all present)")

	return cmd
}

func newVolumesClearCmd() *cobra.Command {
	var (
		engineDir string
		sizes     []string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Wipe the persisted volume directories",
		Long: `Remove the per-size volume directories so the next run starts from an
empty engine. The directories are container-created and root-owned, so
removal goes through sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(sizes) == 0 {
				sizes, err = discoverSizes(filepath.Join(cfg.ServersRoot, engineDir))
				if err != nil {
					return err
				}
			}

			out := output.New(cmd.OutOrStdout())
			manager, err := lifecycle.NewManager(lifecycle.ManagerConfig{
				ServersRoot: cfg.ServersRoot,
				EngineDir:   engineDir,
				Out:         out,
			})
			if err != nil {
				return err
			}
			for _, size := range sizes {
				out.Printf("Clearing volumes for size %s...", size)
				if err := manager.RemoveVolumes(ctx, size); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&engineDir, "engine-dir", "milvus-single-node", "Server directory under servers root")
	cmd.Flags().StringSliceVar(&sizes, "sizes", nil, "Resource sizes to clear (default: all present)")

	return cmd
}

// discoverSizes lists the per-size server directories under the engine dir.
func discoverSizes(engineRoot string) ([]string, error) {
	entries, err := os.ReadDir(engineRoot)
	if err != nil {
		return nil, fmt.Errorf("list server sizes: %w", err)
	}
	var sizes []string
	for _, e := range entries {
		if e.IsDir() {
			sizes = append(sizes, e.Name())
		}
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no size directories under %s", engineRoot)
	}
	return sizes, nil
}

// dirUsage sums regular file sizes under dir. Permission failures on
// root-owned files are skipped rather than aborting the report.
func dirUsage(dir string) (uint64, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, err
	}
	var total uint64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			total += uint64(info.Size())
		}
		return nil
	})
	return total, err
}
