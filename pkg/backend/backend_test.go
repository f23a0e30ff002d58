package backend

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/partbench/pkg/convergence"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/engine/enginetest"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/partition"
)

func TestNames(t *testing.T) {
	r := NewRegistry(Binaries{}, enginetest.Missing())
	assert.Equal(t, []string{"cbc", "gini", "highs", "mip"}, r.Names())
}

func TestGrammar(t *testing.T) {
	r := NewRegistry(Binaries{}, nil)
	assert.Equal(t, convergence.GrammarSearchTrace, r.Grammar("gini"))
	assert.Equal(t, convergence.GrammarBranchAndBound, r.Grammar("cbc"))
	assert.Equal(t, convergence.GrammarTerminalSummary, r.Grammar("mip"))
	assert.Equal(t, convergence.GrammarTerminalSummary, r.Grammar("highs"))
	assert.Equal(t, convergence.GrammarNone, r.Grammar("nope"))
}

func TestSolveUnknownBackend(t *testing.T) {
	_, err := NewRegistry(Binaries{}, nil).Solve(context.Background(), []float64{1}, "gurobi", "", engine.Options{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnknownBackend, errors.CodeOf(err))
	assert.True(t, errors.IsConfiguration(err))
}

func TestSolveInProcessBackend(t *testing.T) {
	in, err := partition.BuiltinInstance(partition.BP20First15)
	require.NoError(t, err)

	sol, err := NewRegistry(Binaries{}, enginetest.Missing()).
		Solve(context.Background(), in.Lengths, "gini", "", engine.Options{})
	require.NoError(t, err)
	assert.InDelta(t, 19.3, sol.MaxSide, 1e-9)
	assert.NoError(t, partition.ValidateSolution(in.Lengths, sol, partition.DefaultTolerance))
}

func TestHighsAliasPinsSubSolver(t *testing.T) {
	runner := &enginetest.Runner{Handle: func(cmd engine.Command) error {
		for i, a := range cmd.Args {
			if a == "--solution_file" {
				return os.WriteFile(cmd.Args[i+1], []byte("Model status\nOptimal\n\n# Primal solution values\nFeasible\nObjective 2\n# Columns 3\nL 2\nx_0 1\nx_1 0\n"), 0o644)
			}
		}
		return nil
	}}
	r := NewRegistry(Binaries{HiGHS: "highs-1.7"}, runner)

	sol, err := r.Solve(context.Background(), []float64{2, 1}, "highs", "cbc", engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, sol.SideA)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/solvers/bin/highs-1.7", calls[0].Path)
}

func TestUnavailableEngineIsFatal(t *testing.T) {
	r := NewRegistry(Binaries{}, enginetest.Missing())
	for _, name := range []string{"cbc", "mip", "highs"} {
		_, err := r.Solve(context.Background(), []float64{1, 2}, name, "", engine.Options{})
		require.Error(t, err, name)
		assert.True(t, errors.IsConfiguration(err), name)
	}
}

func TestSolveRejectsInvalidLengths(t *testing.T) {
	r := NewRegistry(Binaries{}, enginetest.Missing())
	for _, lengths := range [][]float64{nil, {1, 0}, {2, -1}} {
		_, err := r.Solve(context.Background(), lengths, "gini", "", engine.Options{})
		require.Error(t, err)
		assert.True(t, errors.IsInput(err))
	}
}
