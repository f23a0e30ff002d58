package harness

import (
	"context"
	"time"

	"github.com/wehubfusion/partbench/pkg/convergence"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/partition"
)

// DefaultLabel names runs submitted without a label.
const DefaultLabel = "instance"

// Task is one (instance, backend) combination to run.
type Task struct {
	Lengths   []float64 `json:"lengths"`
	Backend   string    `json:"backend"`
	SubSolver string    `json:"sub_solver,omitempty"`
	Label     string    `json:"label,omitempty"`
}

// Name returns the label, or DefaultLabel.
func (t Task) Name() string {
	if t.Label == "" {
		return DefaultLabel
	}
	return t.Label
}

// RunRecord describes a finished run. It is built once at the end of the
// run and never changed afterwards.
type RunRecord struct {
	RunID         string              `json:"run_id"`
	Instance      string              `json:"instance"`
	Backend       string              `json:"backend"`
	SubSolver     string              `json:"sub_solver,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
	LogPath       string              `json:"log_path"`
	SolverLogPath string              `json:"solver_log_path"`
	ElapsedSec    float64             `json:"elapsed_sec"`
	Status        string              `json:"status"`
	MaxSide       float64             `json:"max_side"`
	SumA          float64             `json:"sum_a"`
	SumB          float64             `json:"sum_b"`
	SideA         []int               `json:"side_a"`
	SideB         []int               `json:"side_b"`
	Points        []convergence.Point `json:"convergence"`
}

// Solver is the backend facade as used by the harness.
type Solver interface {
	Solve(ctx context.Context, lengths []float64, backend, subSolver string, opts engine.Options) (partition.Solution, error)
	Grammar(backend string) convergence.Grammar
}

// Renderer turns a finished run into a plot or similar artifact.
type Renderer interface {
	Render(ctx context.Context, rec *RunRecord) error
}

// Sink receives finished runs. Delivery failures never fail the run.
type Sink interface {
	Deliver(ctx context.Context, rec *RunRecord) error
}

// FailureSink is a Sink that is also told about runs that failed.
type FailureSink interface {
	Sink
	DeliverFailure(ctx context.Context, task Task, runErr error) error
}
