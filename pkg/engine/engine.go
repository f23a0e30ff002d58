// Package engine defines the contract every solver backend implements and the
// run options passed to it.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/partition"
)

// Engine solves one 2-way partition instance.
type Engine interface {
	// Name returns the backend name the engine is registered under.
	Name() string

	// Solve partitions lengths and returns the normalized solution.
	Solve(ctx context.Context, lengths []float64, opts Options) (partition.Solution, error)
}

// Options is the immutable per-run configuration handed to an engine.
type Options struct {
	// TimeLimit bounds the search. Zero means no limit.
	TimeLimit time.Duration

	// LogEnabled turns on the engine's own search trace.
	LogEnabled bool

	// LogToFileOnly suppresses console tracing unless PerRunLog is set.
	LogToFileOnly bool

	// PerRunLog reports that the caller isolates output per run.
	PerRunLog bool

	// LogPath receives the raw engine trace and stats blocks.
	LogPath string

	// ConvergencePath receives live "[convergence]" lines, when the engine
	// has an improvement callback.
	ConvergencePath string

	// Seed fixes the engine's randomization.
	Seed int64

	// SubSolver selects the solver behind a generic MIP engine.
	SubSolver string

	// Logger receives non-fatal engine diagnostics. Nil discards them.
	Logger *zap.Logger
}

// Log returns the diagnostics logger.
func (o Options) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// CloseTrace calls closeFn from OpenTrace and logs a failure to flush the
// trace file; the run itself is unaffected.
func (o Options) CloseTrace(closeFn func() error) {
	if err := closeFn(); err != nil {
		o.Log().Warn("Failed to close solver log", zap.String("path", o.LogPath), zap.Error(err))
	}
}

// TimeLimitSeconds renders the time limit for command-line solvers.
func (o Options) TimeLimitSeconds() string {
	return strconv.FormatFloat(o.TimeLimit.Seconds(), 'f', -1, 64)
}

// FileLogging reports whether the engine trace goes to LogPath.
func (o Options) FileLogging() bool {
	return o.LogEnabled && o.PerRunLog && o.LogPath != ""
}

// ConsoleLogging reports whether the engine trace goes to the process stdout.
func (o Options) ConsoleLogging() bool {
	return o.LogEnabled && !o.FileLogging() && (!o.LogToFileOnly || o.PerRunLog)
}

// OpenTrace returns the destination for the engine trace. The returned
// writer is nil when tracing is disabled; close must always be called.
func (o Options) OpenTrace() (w io.Writer, closeFn func() error, err error) {
	switch {
	case o.FileLogging():
		f, err := os.OpenFile(o.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open solver log: %w", err)
		}
		return f, f.Close, nil
	case o.ConsoleLogging():
		return os.Stdout, noClose, nil
	default:
		return nil, noClose, nil
	}
}

// AppendStats appends a titled key/value block to LogPath. It is a no-op
// unless file logging is active.
func (o Options) AppendStats(title string, fields [][2]string) error {
	if !o.FileLogging() {
		return nil
	}
	f, err := os.OpenFile(o.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open solver log: %w", err)
	}
	fmt.Fprintf(f, "[%s]\n", title)
	for _, kv := range fields {
		fmt.Fprintf(f, "%s=%s\n", kv[0], kv[1])
	}
	return f.Close()
}

func noClose() error { return nil }
