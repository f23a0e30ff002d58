package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/summary"
)

func newSummaryCmd(c *cli) *cobra.Command {
	var (
		dir     string
		pattern string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate structured run logs into a comparison CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = c.cfg.LogDir
			}
			rows, err := summary.Collect(cmd.Context(), dir, pattern)
			if err != nil {
				return err
			}
			if err := summary.WriteCSV(out, rows); err != nil {
				return err
			}
			c.logger.Info("Wrote summary", zap.String("path", out), zap.Int("runs", len(rows)))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d runs)\n", out, len(rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "log directory (default LOG_DIR)")
	cmd.Flags().StringVar(&pattern, "pattern", summary.DefaultPattern, "structured log file pattern")
	cmd.Flags().StringVar(&out, "out", filepath.Join("reports", summary.DefaultFile), "output CSV path")
	return cmd
}
