package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/partbench/pkg/scheduler"
)

// newWorkerCmd runs one task read from stdin and replies on stdout. The
// matrix command starts it once per task.
func newWorkerCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run a single task for a parent scheduler",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// the parent delivers records to the sinks
			h := c.newApp().newHarness(c.cfg.PerRunLog, nil)
			return scheduler.ServeWorker(cmd.Context(), cmd.InOrStdin(), os.Stdout, h.Run)
		},
	}
}
