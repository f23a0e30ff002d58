// Package backend is the single entry point that dispatches a solve to the
// engine registered under a backend name.
package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wehubfusion/partbench/pkg/convergence"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/engine/cbc"
	"github.com/wehubfusion/partbench/pkg/engine/mip"
	"github.com/wehubfusion/partbench/pkg/engine/satsearch"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/partition"
)

// HighsAlias is the backend name that selects the MIP engine with HiGHS.
const HighsAlias = "highs"

// Binaries locates the external solver executables.
type Binaries struct {
	CBC   string
	HiGHS string
}

type entry struct {
	engine    engine.Engine
	subSolver string
	grammar   convergence.Grammar
}

// Registry maps backend names to engines and their fallback log grammar.
type Registry struct {
	entries map[string]entry
}

// NewRegistry wires the three engines. A nil runner means engine.ExecRunner.
func NewRegistry(bin Binaries, runner engine.CommandRunner) *Registry {
	mipEngine := mip.New(map[string]string{"highs": bin.HiGHS, "cbc": bin.CBC}, runner)
	return &Registry{entries: map[string]entry{
		satsearch.Name: {engine: satsearch.New(), grammar: convergence.GrammarSearchTrace},
		cbc.Name:       {engine: cbc.New(bin.CBC, runner), grammar: convergence.GrammarBranchAndBound},
		mip.Name:       {engine: mipEngine, grammar: convergence.GrammarTerminalSummary},
		HighsAlias:     {engine: mipEngine, subSolver: "highs", grammar: convergence.GrammarTerminalSummary},
	}}
}

// Names lists the registered backend names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Grammar returns the fallback convergence grammar of a backend.
func (r *Registry) Grammar(name string) convergence.Grammar {
	return r.entries[name].grammar
}

// Solve dispatches to the engine registered under name. subSolver is only
// meaningful for the generic MIP backend; the highs alias pins it.
func (r *Registry) Solve(ctx context.Context, lengths []float64, name, subSolver string, opts engine.Options) (partition.Solution, error) {
	e, ok := r.entries[name]
	if !ok {
		return partition.Solution{}, errors.NewError(errors.CodeUnknownBackend,
			fmt.Sprintf("unknown backend %q (available: %s)", name, strings.Join(r.Names(), ", ")), nil)
	}
	if err := partition.ValidateLengths(lengths, 0); err != nil {
		return partition.Solution{}, err
	}
	switch {
	case e.subSolver != "":
		opts.SubSolver = e.subSolver
	case subSolver != "":
		opts.SubSolver = subSolver
	}
	return e.engine.Solve(ctx, lengths, opts)
}
