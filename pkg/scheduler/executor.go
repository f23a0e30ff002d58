package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/harness"
)

// InProcess runs tasks on a harness in the current process.
type InProcess struct {
	Harness *harness.Harness
}

// Execute implements Executor.
func (e InProcess) Execute(ctx context.Context, task harness.Task) (*harness.RunRecord, error) {
	return e.Harness.Run(ctx, task)
}

// Subprocess runs each task in a fresh worker process speaking the
// protocol served by ServeWorker.
type Subprocess struct {
	// Path and Args start a worker, typically the running executable with
	// the "worker" subcommand.
	Path string
	Args []string
	Env  []string

	// Stderr receives the worker's diagnostics. Nil discards them.
	Stderr io.Writer

	Runner engine.CommandRunner

	// Sinks receive the records returned by workers, in this process.
	Sinks  []harness.Sink
	Logger *zap.Logger
}

// Execute implements Executor. A task error reported by the worker is
// rebuilt with its original code; a worker that dies without replying
// yields a SCHEDULING_FAILURE.
func (e Subprocess) Execute(ctx context.Context, task harness.Task) (*harness.RunRecord, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}

	runner := e.Runner
	if runner == nil {
		runner = engine.ExecRunner{}
	}
	stderr := e.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	var stdout bytes.Buffer
	runErr := runner.Run(ctx, engine.Command{
		Path:   e.Path,
		Args:   e.Args,
		Env:    e.Env,
		Stdin:  bytes.NewReader(payload),
		Stdout: &stdout,
		Stderr: stderr,
	})

	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reply, err := decodeReply(stdout.Bytes())
	if err != nil {
		if runErr != nil {
			return nil, errors.NewError(errors.CodeScheduling, "worker process failed", runErr)
		}
		return nil, errors.NewError(errors.CodeScheduling, "worker reply unreadable", err)
	}
	if !reply.OK {
		taskErr := reply.err()
		harness.ReportFailure(ctx, e.Sinks, task, taskErr, logger)
		return nil, taskErr
	}
	if reply.Record != nil {
		harness.DeliverRecord(ctx, e.Sinks, reply.Record, logger)
	}
	return reply.Record, nil
}
