// Package mip is the generic MIP engine: the shared LP model is handed to a
// configurable command-line sub-solver (HiGHS by default, CBC as alternative).
package mip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wehubfusion/partbench/pkg/convergence"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/engine/cbc"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/lpmodel"
	"github.com/wehubfusion/partbench/pkg/partition"
)

// Name is the backend name of this engine.
const Name = "mip"

// DefaultSubSolver is used when Options.SubSolver is empty.
const DefaultSubSolver = "highs"

// Engine implements engine.Engine on top of a sub-solver table.
type Engine struct {
	binaries map[string]string
	runner   engine.CommandRunner
}

// New returns the MIP engine. binaries overrides the executable of a
// sub-solver by name; a nil runner means engine.ExecRunner.
func New(binaries map[string]string, runner engine.CommandRunner) *Engine {
	if runner == nil {
		runner = engine.ExecRunner{}
	}
	return &Engine{binaries: binaries, runner: runner}
}

// Name implements engine.Engine.
func (e *Engine) Name() string {
	return Name
}

// Solve implements engine.Engine.
func (e *Engine) Solve(ctx context.Context, lengths []float64, opts engine.Options) (partition.Solution, error) {
	name := opts.SubSolver
	if name == "" {
		name = DefaultSubSolver
	}
	sub, ok := LookupSubSolver(name)
	if !ok {
		return partition.Solution{}, errors.NewError(errors.CodeEngineUnavailable,
			fmt.Sprintf("unsupported sub-solver %q (supported: %s)", name, strings.Join(SubSolverNames(), ", ")), nil)
	}

	binary := e.binaries[sub.Name]
	if binary == "" {
		binary = sub.DefaultBinary
	}
	path, err := engine.Resolve(e.runner, Name+"/"+sub.Name, binary)
	if err != nil {
		return partition.Solution{}, err
	}

	dir, err := os.MkdirTemp("", "partbench-mip-*")
	if err != nil {
		return partition.Solution{}, err
	}
	defer os.RemoveAll(dir)

	model := lpmodel.New(cbc.ModelName, lengths)
	modelPath := filepath.Join(dir, "model.lp")
	solutionPath := filepath.Join(dir, "model.sol")
	if err := model.WriteFile(modelPath); err != nil {
		return partition.Solution{}, err
	}

	w, closeTrace, err := opts.OpenTrace()
	if err != nil {
		return partition.Solution{}, err
	}
	start := time.Now()
	runErr := e.runner.Run(ctx, engine.Command{
		Path:   path,
		Args:   sub.Args(modelPath, solutionPath, opts),
		Stdout: w,
		Stderr: w,
	})
	opts.CloseTrace(closeTrace)
	elapsed := time.Since(start)
	if runErr != nil {
		return partition.Solution{}, errors.NewError(errors.CodeEngineFailure, sub.Name+" run failed", runErr)
	}

	res, err := sub.ReadSolution(solutionPath)
	if err != nil {
		return partition.Solution{}, errors.NewError(errors.CodeEngineFailure, "cannot read "+sub.Name+" solution", err)
	}

	if err := opts.AppendStats("mip_stats", [][2]string{
		{"sub_solver", sub.Name},
		{"status", res.Status},
		{"objective", convergence.FormatObjective(res.Objective)},
		{"time_limit_key", sub.TimeLimitKey},
		{"wall_time", strconv.FormatFloat(elapsed.Seconds(), 'f', 6, 64)},
	}); err != nil {
		return partition.Solution{}, err
	}

	if !res.Usable {
		return partition.Solution{}, errors.NewError(errors.CodeEngineFailure,
			fmt.Sprintf("%s returned no solution (status %q)", sub.Name, res.Status), nil)
	}

	inA, bound := model.Assignment(res.Values)
	return partition.FromAssignment(res.Status, bound, inA, lengths), nil
}
