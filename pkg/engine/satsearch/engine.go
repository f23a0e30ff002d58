// Package satsearch is the in-process engine: the partition problem is
// compiled to a boolean circuit and minimized with incremental SAT calls on
// github.com/go-air/gini. Every improving solution is reported through the
// live convergence callback.
package satsearch

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/convergence"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/partition"
)

// Name is the backend name of this engine.
const Name = "gini"

// Termination statuses.
const (
	StatusOptimal  = "OPTIMAL"
	StatusFeasible = "FEASIBLE"
	StatusUnknown  = "UNKNOWN"
)

// Engine implements engine.Engine.
type Engine struct{}

// New returns the SAT search engine.
func New() *Engine {
	return &Engine{}
}

// Name implements engine.Engine.
func (e *Engine) Name() string {
	return Name
}

// result is the outcome of one minimization.
type result struct {
	status    string
	best      int64
	inA       []bool
	solutions int
	calls     int
}

// Solve implements engine.Engine.
func (e *Engine) Solve(ctx context.Context, lengths []float64, opts engine.Options) (partition.Solution, error) {
	start := time.Now()
	scaled, factor, err := partition.ScaleLengths(lengths)
	if err != nil {
		return partition.Solution{}, err
	}
	order := rand.New(rand.NewSource(opts.Seed)).Perm(len(scaled))
	m := buildModel(scaled, order)

	rec, err := convergence.OpenRecorder(opts.ConvergencePath, start)
	if err != nil {
		return partition.Solution{}, err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			opts.Log().Warn("Failed to close convergence log", zap.String("path", opts.ConvergencePath), zap.Error(err))
		}
	}()

	w, closeTrace, err := opts.OpenTrace()
	if err != nil {
		return partition.Solution{}, err
	}
	defer opts.CloseTrace(closeTrace)
	tr := &tracer{w: w, start: start, factor: factor}
	tr.header(len(lengths), opts.Seed, m.lower)

	deadline := effectiveDeadline(ctx, start, opts.TimeLimit)
	res := minimize(m, deadline, func(best int64) {
		if err := rec.Record(float64(best) / float64(factor)); err != nil {
			opts.Log().Warn("Failed to record convergence point",
				zap.String("path", opts.ConvergencePath),
				zap.Int64("objective_scaled", best),
				zap.Error(err))
		}
		tr.improvement(best, m.lower)
	})
	tr.done(res.status)

	elapsed := time.Since(start)
	objective := "none"
	if res.inA != nil {
		objective = formatScaled(res.best, factor)
	}
	if err := opts.AppendStats("search_stats", [][2]string{
		{"status", res.status},
		{"objective", objective},
		{"lower_bound", formatScaled(m.lower, factor)},
		{"solutions", strconv.Itoa(res.solutions)},
		{"solve_calls", strconv.Itoa(res.calls)},
		{"scale_factor", strconv.FormatInt(factor, 10)},
		{"seed", strconv.FormatInt(opts.Seed, 10)},
		{"wall_time", strconv.FormatFloat(elapsed.Seconds(), 'f', 6, 64)},
	}); err != nil {
		return partition.Solution{}, err
	}

	if res.inA == nil {
		return partition.Solution{}, errors.NewError(errors.CodeEngineFailure,
			"no solution found within "+opts.TimeLimit.String(), nil)
	}
	return partition.FromAssignment(res.status, float64(res.best)/float64(factor), res.inA, lengths), nil
}

// minimize finds a first assignment without constraining L, then keeps
// fixing L to one below the incumbent until that is unsatisfiable, the lower
// bound is met, or the deadline passes.
func minimize(m *model, deadline time.Time, onImprove func(best int64)) result {
	g := gini.New()
	m.c.ToCnf(g)
	for _, unit := range []z.Lit{m.c.T, m.fitsA, m.fitsB} {
		g.Add(unit)
		g.Add(z.LitNull)
	}

	res := result{status: StatusUnknown}
	var assume []z.Lit
	for {
		if len(assume) > 0 {
			g.Assume(assume...)
		}
		res.calls++
		switch solveUntil(g, deadline) {
		case 1:
			res.inA = make([]bool, len(m.items))
			for i, lit := range m.items {
				res.inA[i] = g.Value(lit)
			}
			res.best = m.objective(res.inA)
			res.solutions++
			res.status = StatusFeasible
			onImprove(res.best)
			if res.best <= m.lower {
				res.status = StatusOptimal
				return res
			}
			assume = m.boundAssumptions(res.best - 1)
		case -1:
			if res.inA != nil {
				res.status = StatusOptimal
			}
			return res
		default:
			return res
		}
	}
}

func solveUntil(g *gini.Gini, deadline time.Time) int {
	if deadline.IsZero() {
		return g.Solve()
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}
	return g.GoSolve().Try(remaining)
}

func effectiveDeadline(ctx context.Context, start time.Time, limit time.Duration) time.Time {
	var deadline time.Time
	if limit > 0 {
		deadline = start.Add(limit)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

func formatScaled(v, factor int64) string {
	return convergence.FormatObjective(float64(v) / float64(factor))
}
