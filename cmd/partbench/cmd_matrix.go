package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/partbench/pkg/harness"
	"github.com/wehubfusion/partbench/pkg/partition"
	"github.com/wehubfusion/partbench/pkg/summary"
)

type matrixOptions struct {
	instances     []string
	instanceFiles []string
	solvers       []string
	subSolver     string
	expectedCount int
	summaryPath   string
}

func newMatrixCmd(c *cli) *cobra.Command {
	opts := &matrixOptions{}
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Run every instance with every backend",
		Long: `Runs the cross product of instances and backends on MAX_THREADS workers.

With PER_RUN_LOG set, every run executes in its own worker process so that
engine output can be captured per run; otherwise runs share this process.
All runs complete even when some fail; the first failure is reported.

Example:
  MAX_THREADS=4 partbench matrix --solvers gini,cbc,highs --instance-file a.json --instance-file b.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatrix(cmd, c, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.instances, "instances", []string{partition.BP20First15}, "built-in instances")
	cmd.Flags().StringArrayVar(&opts.instanceFiles, "instance-file", nil, "instance file (repeatable)")
	cmd.Flags().StringSliceVar(&opts.solvers, "solvers", []string{"gini", "cbc", "mip"}, "backends to run")
	cmd.Flags().StringVar(&opts.subSolver, "sub-solver", "", "sub-solver of the mip backend (highs, cbc)")
	cmd.Flags().IntVar(&opts.expectedCount, "expected-count", 0, "required number of lengths per instance, 0 to accept any")
	cmd.Flags().StringVar(&opts.summaryPath, "summary", "", "write the comparison CSV of this batch to this path")
	return cmd
}

func matrixTasks(opts *matrixOptions) ([]harness.Task, error) {
	var instances []partition.Instance
	for _, name := range opts.instances {
		in, err := partition.BuiltinInstance(name)
		if err != nil {
			return nil, err
		}
		instances = append(instances, in)
	}
	for _, file := range opts.instanceFiles {
		in, err := partition.LoadInstance(file)
		if err != nil {
			return nil, err
		}
		instances = append(instances, in)
	}

	var tasks []harness.Task
	for _, in := range instances {
		if err := partition.ValidateLengths(in.Lengths, opts.expectedCount); err != nil {
			return nil, fmt.Errorf("instance %s: %w", in.Name, err)
		}
		for _, solver := range opts.solvers {
			tasks = append(tasks, harness.Task{
				Lengths:   in.Lengths,
				Backend:   solver,
				SubSolver: opts.subSolver,
				Label:     in.Name,
			})
		}
	}
	return tasks, nil
}

func runMatrix(cmd *cobra.Command, c *cli, opts *matrixOptions) error {
	tasks, err := matrixTasks(opts)
	if err != nil {
		return err
	}

	a := c.newApp()
	a.connectSinks(cmd.Context())
	defer a.close()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}
	outcomes, runErr := sched.Run(cmd.Context(), tasks)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tSOLVER\tSTATUS\tMAX_SIDE\tTIME_SEC\tPOINTS\tLOG")
	var rows []summary.Row
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t%v\n", o.Task.Name(), o.Task.Backend, summary.StatusError, o.Err)
			continue
		}
		rec := o.Record
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%.3f\t%d\t%s\n",
			rec.Instance, rec.Backend, rec.Status, rec.MaxSide, rec.ElapsedSec, len(rec.Points), rec.LogPath)
		rows = append(rows, summary.Row{
			Instance:   rec.Instance,
			Solver:     rec.Backend,
			Status:     rec.Status,
			MaxSide:    rec.MaxSide,
			TimeSec:    rec.ElapsedSec,
			ConvPoints: len(rec.Points),
			Log:        filepath.Base(rec.LogPath),
		})
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.summaryPath != "" {
		if err := summary.WriteCSV(opts.summaryPath, rows); err != nil {
			return err
		}
	}
	return runErr
}
