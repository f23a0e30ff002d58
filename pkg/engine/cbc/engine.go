// Package cbc runs the COIN-OR CBC branch-and-bound solver on the shared LP
// model through its command line.
package cbc

import (
	"context"
	"os"
	"path/filepath"

	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/lpmodel"
	"github.com/wehubfusion/partbench/pkg/partition"
)

// Name is the backend name of this engine.
const Name = "cbc"

// DefaultBinary is looked up on PATH when no explicit binary is configured.
const DefaultBinary = "cbc"

// ModelName is the problem name written into generated LP files.
const ModelName = "parking_partition"

// Engine implements engine.Engine for CBC.
type Engine struct {
	binary string
	runner engine.CommandRunner
}

// New returns a CBC engine. An empty binary means DefaultBinary and a nil
// runner means engine.ExecRunner.
func New(binary string, runner engine.CommandRunner) *Engine {
	if binary == "" {
		binary = DefaultBinary
	}
	if runner == nil {
		runner = engine.ExecRunner{}
	}
	return &Engine{binary: binary, runner: runner}
}

// Name implements engine.Engine.
func (e *Engine) Name() string {
	return Name
}

// Args builds the CBC command line. timeKey names the time-limit parameter
// ("sec" and "seconds" are both accepted by CBC).
func Args(modelPath, solutionPath, timeKey string, opts engine.Options) []string {
	args := []string{modelPath}
	if opts.TimeLimit > 0 {
		args = append(args, timeKey, opts.TimeLimitSeconds())
	}
	return append(args, "solve", "solution", solutionPath)
}

// Solve implements engine.Engine.
func (e *Engine) Solve(ctx context.Context, lengths []float64, opts engine.Options) (partition.Solution, error) {
	path, err := engine.Resolve(e.runner, Name, e.binary)
	if err != nil {
		return partition.Solution{}, err
	}

	dir, err := os.MkdirTemp("", "partbench-cbc-*")
	if err != nil {
		return partition.Solution{}, err
	}
	defer os.RemoveAll(dir)

	model := lpmodel.New(ModelName, lengths)
	modelPath := filepath.Join(dir, "model.lp")
	solutionPath := filepath.Join(dir, "model.sol")
	if err := model.WriteFile(modelPath); err != nil {
		return partition.Solution{}, err
	}

	res, err := RunSolver(ctx, e.runner, path, Args(modelPath, solutionPath, "sec", opts), solutionPath, opts)
	if err != nil {
		return partition.Solution{}, err
	}

	inA, bound := model.Assignment(res.Values)
	return partition.FromAssignment(res.Status, bound, inA, lengths), nil
}

// RunSolver executes CBC with args, routes its trace according to opts and
// reads back the solution file.
func RunSolver(ctx context.Context, runner engine.CommandRunner, path string, args []string, solutionPath string, opts engine.Options) (Result, error) {
	w, closeTrace, err := opts.OpenTrace()
	if err != nil {
		return Result{}, err
	}
	runErr := runner.Run(ctx, engine.Command{Path: path, Args: args, Stdout: w, Stderr: w})
	opts.CloseTrace(closeTrace)
	if runErr != nil {
		return Result{}, errors.NewError(errors.CodeEngineFailure, "cbc run failed", runErr)
	}

	res, err := ReadSolutionFile(solutionPath)
	if err != nil {
		return Result{}, errors.NewError(errors.CodeEngineFailure, "cannot read cbc solution", err)
	}
	if !res.HasSolution() {
		return Result{}, errors.NewError(errors.CodeEngineFailure, "cbc returned no solution: "+res.Raw, nil)
	}

	return res, nil
}
