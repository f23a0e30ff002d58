// Package scheduler runs batches of solver tasks on a fixed pool of
// workers. Workers are goroutines sharing one process, or re-executed
// worker processes when each run needs its own descriptors.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/harness"
)

// Executor runs one task to completion.
type Executor interface {
	Execute(ctx context.Context, task harness.Task) (*harness.RunRecord, error)
}

// Outcome is the result of one task, in submission order.
type Outcome struct {
	Task   harness.Task
	Record *harness.RunRecord
	Err    error
}

// Config holds scheduler configuration.
type Config struct {
	// MaxWorkers bounds concurrent tasks. Values below 1 mean 1.
	MaxWorkers int

	// Local runs a batch consisting of a single task.
	Local Executor

	// Pool runs tasks of larger batches.
	Pool Executor

	Logger *zap.Logger
}

// Scheduler dispatches task batches.
type Scheduler struct {
	config Config
	logger *zap.Logger
}

// New creates a scheduler. A nil Pool falls back to Local.
func New(config Config) *Scheduler {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	if config.Pool == nil {
		config.Pool = config.Local
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{config: config, logger: logger}
}

// Run executes every task and waits for all of them. Tasks are never
// cancelled because a sibling failed; the first failure in submission
// order is returned as a SCHEDULING_FAILURE wrapping the task's error.
func (s *Scheduler) Run(ctx context.Context, tasks []harness.Task) ([]Outcome, error) {
	outcomes := make([]Outcome, len(tasks))
	switch len(tasks) {
	case 0:
		return outcomes, nil
	case 1:
		rec, err := s.config.Local.Execute(ctx, tasks[0])
		outcomes[0] = Outcome{Task: tasks[0], Record: rec, Err: err}
	default:
		s.runPool(ctx, tasks, outcomes)
	}

	for i, o := range outcomes {
		if o.Err != nil {
			return outcomes, errors.NewError(errors.CodeScheduling,
				fmt.Sprintf("task %d (%s/%s) failed", i, o.Task.Name(), o.Task.Backend), o.Err)
		}
	}
	return outcomes, nil
}

func (s *Scheduler) runPool(ctx context.Context, tasks []harness.Task, outcomes []Outcome) {
	numWorkers := s.config.MaxWorkers
	if numWorkers > len(tasks) {
		numWorkers = len(tasks)
	}
	s.logger.Debug("Starting worker pool",
		zap.Int("workers", numWorkers),
		zap.Int("tasks", len(tasks)))

	workCh := make(chan int, len(tasks))
	for i := range tasks {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for idx := range workCh {
				task := tasks[idx]
				rec, err := s.config.Pool.Execute(ctx, task)
				if err != nil {
					s.logger.Warn("Task failed",
						zap.Int("worker", worker),
						zap.Int("task", idx),
						zap.String("instance", task.Name()),
						zap.String("backend", task.Backend),
						zap.Error(err))
				}
				// each index is written by exactly one worker
				outcomes[idx] = Outcome{Task: task, Record: rec, Err: err}
			}
		}(w)
	}
	wg.Wait()
}
