// Package harness runs one solver task end to end: per-run log files,
// optional descriptor capture, validation, convergence reconstruction and
// delivery of the run record.
package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/capture"
	"github.com/wehubfusion/partbench/pkg/convergence"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/partition"
)

// Structured log markers.
const (
	SolverLogBegin = "[solver_log_begin]"
	SolverLogEnd   = "[solver_log_end]"
)

// Options configures a Harness.
type Options struct {
	// LogDir receives the per-run log files.
	LogDir string

	// Engine is the base engine configuration. LogPath, ConvergencePath and
	// SubSolver are set per run.
	Engine engine.Options

	// Redirect captures descriptors 1 and 2 into the raw log while the
	// engine runs. Only safe when no other run shares the process.
	Redirect bool

	// Plot hands finished runs to the renderer.
	Plot bool
}

// Harness executes tasks.
type Harness struct {
	solver   Solver
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
	renderer Renderer
	sinks    []Sink
	now      func() time.Time
}

// Option customizes a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRenderer sets the plot renderer used when Options.Plot is on.
func WithRenderer(r Renderer) Option {
	return func(h *Harness) { h.renderer = r }
}

// WithSinks adds run record sinks.
func WithSinks(sinks ...Sink) Option {
	return func(h *Harness) { h.sinks = append(h.sinks, sinks...) }
}

// WithClock replaces the clock used for file name stamps.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// New returns a Harness running tasks through solver.
func New(solver Solver, opts Options, options ...Option) *Harness {
	h := &Harness{
		solver: solver,
		opts:   opts,
		logger: zap.NewNop(),
		tracer: otel.Tracer("partbench/harness"),
		now:    time.Now,
	}
	for _, o := range options {
		o(h)
	}
	return h
}

// Redirects reports whether runs capture process descriptors.
func (h *Harness) Redirects() bool {
	return h.opts.Redirect
}

// Run executes task and returns its record. Input, configuration, engine
// and correctness errors are returned unchanged; the structured log keeps
// whatever was written up to the failure.
func (h *Harness) Run(ctx context.Context, task Task) (*RunRecord, error) {
	label := task.Name()
	ctx, span := h.tracer.Start(ctx, "harness.Run", trace.WithAttributes(
		attribute.String("instance", label),
		attribute.String("backend", task.Backend),
		attribute.String("sub_solver", task.SubSolver),
		attribute.Int("items", len(task.Lengths)),
	))
	defer span.End()

	rec, err := h.run(ctx, task, label)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Error("Run failed",
			zap.String("instance", label),
			zap.String("backend", task.Backend),
			zap.Error(err))
		ReportFailure(ctx, h.sinks, task, err, h.logger)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("status", rec.Status),
		attribute.Float64("max_side", rec.MaxSide),
		attribute.Int("convergence_points", len(rec.Points)),
	)

	h.logger.Info("Run finished",
		zap.String("run_id", rec.RunID),
		zap.String("instance", rec.Instance),
		zap.String("backend", rec.Backend),
		zap.String("status", rec.Status),
		zap.Float64("max_side", rec.MaxSide),
		zap.Float64("elapsed_sec", rec.ElapsedSec),
		zap.Int("convergence_points", len(rec.Points)),
		zap.String("log", rec.LogPath))

	h.publish(ctx, rec)
	return rec, nil
}

func (h *Harness) run(ctx context.Context, task Task, label string) (*RunRecord, error) {
	files, err := CreateRunFiles(h.opts.LogDir, label, task.Backend, h.now)
	if err != nil {
		return nil, err
	}
	rec := &RunRecord{
		RunID:         uuid.NewString(),
		Instance:      label,
		Backend:       task.Backend,
		SubSolver:     task.SubSolver,
		Timestamp:     h.now(),
		LogPath:       files.LogPath,
		SolverLogPath: files.SolverLogPath,
	}

	f, err := os.OpenFile(files.LogPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	header := fmt.Sprintf("[run] instance=%s solver=%s", label, task.Backend)
	if task.SubSolver != "" {
		header += " sub_solver=" + task.SubSolver
	}
	fmt.Fprintf(f, "%s run_id=%s\n", header, rec.RunID)
	fmt.Fprintln(f, convergence.Header)

	opts := h.opts.Engine
	opts.LogPath = files.SolverLogPath
	opts.ConvergencePath = files.LogPath
	opts.SubSolver = task.SubSolver
	opts.Logger = h.logger.With(zap.String("run_id", rec.RunID), zap.String("backend", task.Backend))

	var sol partition.Solution
	solve := func() error {
		var err error
		sol, err = h.solver.Solve(ctx, task.Lengths, task.Backend, task.SubSolver, opts)
		return err
	}
	start := time.Now()
	if h.opts.Redirect {
		err = capture.Run(files.SolverLogPath, solve)
	} else {
		err = solve()
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		fmt.Fprintf(f, "[error] instance=%s solver=%s elapsed=%.3fs error=%q\n", label, task.Backend, elapsed, err.Error())
		return nil, err
	}

	// live points are the callback lines written so far
	structured, err := os.ReadFile(files.LogPath)
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	live := convergence.ParseLogLines(string(structured))

	fmt.Fprintf(f, "[done] instance=%s solver=%s elapsed=%.3fs\n", label, task.Backend, elapsed)
	fmt.Fprintf(f, "[result] status=%s max_side=%s\n", sol.Status, formatFloat(sol.MaxSide))
	fmt.Fprintf(f, "[result] sum_a=%s sum_b=%s\n", formatFloat(sol.SumA), formatFloat(sol.SumB))
	fmt.Fprintf(f, "[result] side_a=%s\n", FormatIndices(sol.SideA))
	fmt.Fprintf(f, "[result] side_b=%s\n", FormatIndices(sol.SideB))

	if err := partition.ValidateSolution(task.Lengths, sol, partition.DefaultTolerance); err != nil {
		fmt.Fprintf(f, "[error] validation failed: %v\n", err)
		return nil, err
	}

	raw, err := os.ReadFile(files.SolverLogPath)
	if err != nil {
		return nil, fmt.Errorf("read solver log: %w", err)
	}
	if len(raw) > 0 {
		if err := embedRaw(f, raw); err != nil {
			h.logger.Warn("Failed to embed solver log",
				zap.String("run_id", rec.RunID),
				zap.String("solver_log", files.SolverLogPath),
				zap.Error(err))
		}
	}

	structured, err = os.ReadFile(files.LogPath)
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	src := convergence.Sources{Live: live, Raw: string(raw), Structured: string(structured)}
	points := convergence.Extract(h.solver.Grammar(task.Backend), src)
	if !convergence.UsesLive(src) {
		for _, p := range points {
			fmt.Fprintln(f, convergence.FormatLine(p))
		}
		// a lone live point is already in the log
		points = append(append([]convergence.Point(nil), live...), points...)
		convergence.SortByTime(points)
	}

	points = convergence.WithFinal(points, convergence.Point{Elapsed: elapsed, Objective: sol.MaxSide, Status: sol.Status})
	fmt.Fprintln(f, convergence.FormatLine(points[len(points)-1]))

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close run log: %w", err)
	}

	rec.ElapsedSec = elapsed
	rec.Status = sol.Status
	rec.MaxSide = sol.MaxSide
	rec.SumA = sol.SumA
	rec.SumB = sol.SumB
	rec.SideA = sol.SideA
	rec.SideB = sol.SideB
	rec.Points = points
	return rec, nil
}

// publish hands the record to the renderer and sinks. Failures are logged.
func (h *Harness) publish(ctx context.Context, rec *RunRecord) {
	if h.opts.Plot && h.renderer != nil {
		if err := h.renderer.Render(ctx, rec); err != nil {
			h.logger.Warn("Failed to render convergence", zap.String("run_id", rec.RunID), zap.Error(err))
		}
	}
	DeliverRecord(ctx, h.sinks, rec, h.logger)
}

// DeliverRecord hands rec to every sink, logging delivery failures.
func DeliverRecord(ctx context.Context, sinks []Sink, rec *RunRecord, logger *zap.Logger) {
	for _, s := range sinks {
		if err := s.Deliver(ctx, rec); err != nil {
			logger.Warn("Failed to deliver run record",
				zap.String("run_id", rec.RunID),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err))
		}
	}
}

// ReportFailure tells every FailureSink among sinks that task failed.
func ReportFailure(ctx context.Context, sinks []Sink, task Task, runErr error, logger *zap.Logger) {
	for _, s := range sinks {
		fs, ok := s.(FailureSink)
		if !ok {
			continue
		}
		if err := fs.DeliverFailure(ctx, task, runErr); err != nil {
			logger.Warn("Failed to report run failure",
				zap.String("instance", task.Name()),
				zap.String("backend", task.Backend),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err))
		}
	}
}

// embedRaw copies the raw engine output between the solver-log markers.
func embedRaw(w io.Writer, raw []byte) error {
	if _, err := fmt.Fprintln(w, SolverLogBegin); err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if raw[len(raw)-1] != '\n' {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, SolverLogEnd)
	return err
}

// FormatIndices renders indices as "[0, 3, 7]".
func FormatIndices(idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
