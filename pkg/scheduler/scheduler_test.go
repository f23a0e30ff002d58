package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wehubfusion/partbench/pkg/backend"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/engine/enginetest"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/harness"
)

const workerEnv = "PARTBENCH_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		if err := ServeWorker(context.Background(), os.Stdin, os.Stdout, helperRun); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	goleak.VerifyTestMain(m)
}

// helperRun is the task body of the re-executed test binary.
func helperRun(_ context.Context, task harness.Task) (*harness.RunRecord, error) {
	switch task.Label {
	case "fail":
		return nil, errors.Correctness("max_side mismatch: reported=4, expected=5")
	case "unavailable":
		return nil, errors.Unavailable("cbc", stderrors.New("executable file not found in $PATH"))
	case "plain":
		return nil, stderrors.New("disk full")
	case "noisy":
		fmt.Print("Cbc0010I After 0 nodes, 1 on tree")
	}
	return &harness.RunRecord{
		Instance: task.Name(),
		Backend:  task.Backend,
		Status:   "Optimal",
		MaxSide:  19.3,
		LogPath:  "/logs/output_" + task.Name() + ".log",
	}, nil
}

func helperWorker() Subprocess {
	return Subprocess{Path: os.Args[0], Env: []string{workerEnv + "=1"}}
}

type funcExecutor func(ctx context.Context, task harness.Task) (*harness.RunRecord, error)

func (f funcExecutor) Execute(ctx context.Context, task harness.Task) (*harness.RunRecord, error) {
	return f(ctx, task)
}

func tasks(labels ...string) []harness.Task {
	out := make([]harness.Task, len(labels))
	for i, l := range labels {
		out[i] = harness.Task{Lengths: []float64{1, 2}, Backend: "gini", Label: l}
	}
	return out
}

func echo(_ context.Context, task harness.Task) (*harness.RunRecord, error) {
	return &harness.RunRecord{Instance: task.Name(), Backend: task.Backend}, nil
}

func TestRunEmpty(t *testing.T) {
	s := New(Config{Local: funcExecutor(echo)})
	outcomes, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRunSingleTaskUsesLocal(t *testing.T) {
	var poolCalls atomic.Int32
	s := New(Config{
		MaxWorkers: 4,
		Local:      funcExecutor(echo),
		Pool: funcExecutor(func(ctx context.Context, task harness.Task) (*harness.RunRecord, error) {
			poolCalls.Add(1)
			return echo(ctx, task)
		}),
	})

	outcomes, err := s.Run(context.Background(), tasks("only"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "only", outcomes[0].Record.Instance)
	assert.Zero(t, poolCalls.Load())
}

func TestRunPoolBoundsConcurrency(t *testing.T) {
	var running, peak, done atomic.Int32
	exec := funcExecutor(func(ctx context.Context, task harness.Task) (*harness.RunRecord, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		done.Add(1)
		return echo(ctx, task)
	})

	s := New(Config{MaxWorkers: 3, Pool: exec})
	labels := make([]string, 10)
	for i := range labels {
		labels[i] = fmt.Sprintf("t%d", i)
	}
	outcomes, err := s.Run(context.Background(), tasks(labels...))
	require.NoError(t, err)

	assert.Equal(t, int32(10), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(3))
	for i, o := range outcomes {
		assert.Equal(t, labels[i], o.Record.Instance)
	}
}

func TestRunCompletesAllTasksDespiteFailures(t *testing.T) {
	first := stderrors.New("task 2 failed")
	var executed atomic.Int32
	exec := funcExecutor(func(ctx context.Context, task harness.Task) (*harness.RunRecord, error) {
		executed.Add(1)
		switch task.Label {
		case "t2":
			return nil, first
		case "t5":
			return nil, stderrors.New("task 5 failed")
		}
		return echo(ctx, task)
	})

	s := New(Config{MaxWorkers: 2, Pool: exec})
	outcomes, err := s.Run(context.Background(), tasks("t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7"))
	require.Error(t, err)

	assert.Equal(t, int32(8), executed.Load())
	assert.Equal(t, errors.CodeScheduling, errors.CodeOf(err))
	assert.ErrorIs(t, err, first)
	assert.Contains(t, err.Error(), "task 2 (t2/gini)")
	require.Len(t, outcomes, 8)
	assert.NotNil(t, outcomes[7].Record)
	assert.Error(t, outcomes[5].Err)
}

func TestRunPreservesInnerCode(t *testing.T) {
	s := New(Config{Local: funcExecutor(func(context.Context, harness.Task) (*harness.RunRecord, error) {
		return nil, errors.Correctness("overlap between sides: [3]")
	})})

	_, err := s.Run(context.Background(), tasks("bad"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeScheduling, errors.CodeOf(err))
	assert.True(t, errors.IsCorrectness(err))
}

func TestSubprocessExecute(t *testing.T) {
	rec, err := helperWorker().Execute(context.Background(), harness.Task{Lengths: []float64{1}, Backend: "cbc", Label: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Instance)
	assert.Equal(t, "cbc", rec.Backend)
	assert.Equal(t, 19.3, rec.MaxSide)
	assert.Equal(t, "/logs/output_ok.log", rec.LogPath)
}

type countingSink struct{ n atomic.Int32 }

func (s *countingSink) Deliver(context.Context, *harness.RunRecord) error {
	s.n.Add(1)
	return stderrors.New("broker down")
}

func TestSubprocessDeliversToSinks(t *testing.T) {
	sink := &countingSink{}
	w := helperWorker()
	w.Sinks = []harness.Sink{sink}

	_, err := w.Execute(context.Background(), harness.Task{Backend: "cbc", Label: "ok"})
	require.NoError(t, err, "sink failures never fail the task")
	_, err = w.Execute(context.Background(), harness.Task{Backend: "cbc", Label: "fail"})
	require.Error(t, err)
	assert.Equal(t, int32(1), sink.n.Load())
}

type failureCountingSink struct {
	countingSink
	failures atomic.Int32
	lastCode atomic.Value
}

func (s *failureCountingSink) DeliverFailure(_ context.Context, _ harness.Task, runErr error) error {
	s.failures.Add(1)
	s.lastCode.Store(errors.CodeOf(runErr))
	return nil
}

func TestSubprocessReportsFailuresInParent(t *testing.T) {
	sink := &failureCountingSink{}
	w := helperWorker()
	w.Sinks = []harness.Sink{sink}

	_, err := w.Execute(context.Background(), harness.Task{Backend: "cbc", Label: "unavailable"})
	require.Error(t, err)
	assert.Equal(t, int32(0), sink.n.Load())
	assert.Equal(t, int32(1), sink.failures.Load())
	assert.Equal(t, errors.CodeOf(err), sink.lastCode.Load())
}

func TestSubprocessIgnoresEngineChatter(t *testing.T) {
	rec, err := helperWorker().Execute(context.Background(), harness.Task{Backend: "cbc", Label: "noisy"})
	require.NoError(t, err)
	assert.Equal(t, "noisy", rec.Instance)
}

func TestSubprocessRebuildsErrors(t *testing.T) {
	w := helperWorker()

	_, err := w.Execute(context.Background(), harness.Task{Backend: "cbc", Label: "fail"})
	require.Error(t, err)
	assert.True(t, errors.IsCorrectness(err))
	assert.Contains(t, err.Error(), "max_side mismatch")

	_, err = w.Execute(context.Background(), harness.Task{Backend: "cbc", Label: "unavailable"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "executable file not found")

	_, err = w.Execute(context.Background(), harness.Task{Backend: "cbc", Label: "plain"})
	require.Error(t, err)
	assert.Equal(t, "disk full", err.Error())
}

func TestSubprocessWorkerCrash(t *testing.T) {
	crash := stderrors.New("signal: killed")
	runner := &enginetest.Runner{Handle: func(engine.Command) error { return crash }}

	_, err := Subprocess{Path: "partbench", Args: []string{"worker"}, Runner: runner}.
		Execute(context.Background(), harness.Task{Backend: "gini"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeScheduling, errors.CodeOf(err))
	assert.ErrorIs(t, err, crash)
}

func TestSubprocessSendsTaskOnStdin(t *testing.T) {
	var got harness.Task
	runner := &enginetest.Runner{Handle: func(cmd engine.Command) error {
		if err := json.NewDecoder(cmd.Stdin).Decode(&got); err != nil {
			return err
		}
		return writeReply(cmd.Stdout, Reply{OK: true, Record: &harness.RunRecord{Instance: got.Label}})
	}}

	task := harness.Task{Lengths: []float64{2.5, 1}, Backend: "mip", SubSolver: "cbc", Label: "x"}
	rec, err := Subprocess{Path: "partbench", Args: []string{"worker"}, Runner: runner}.
		Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, task, got)
	assert.Equal(t, "x", rec.Instance)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"worker"}, calls[0].Args)
}

func TestServeWorkerRejectsBadTask(t *testing.T) {
	var out bytes.Buffer
	called := false
	err := ServeWorker(context.Background(), strings.NewReader("{not json"), &out,
		func(context.Context, harness.Task) (*harness.RunRecord, error) {
			called = true
			return nil, nil
		})
	require.NoError(t, err)
	assert.False(t, called)

	reply, err := decodeReply(out.Bytes())
	require.NoError(t, err)
	assert.False(t, reply.OK)
	assert.Equal(t, errors.CodeInvalidInput, reply.Code)
}

func TestDecodeReplyEmpty(t *testing.T) {
	_, err := decodeReply(nil)
	assert.Error(t, err)
}

func TestSchedulerWithWorkerProcesses(t *testing.T) {
	s := New(Config{MaxWorkers: 2, Local: helperWorker(), Pool: helperWorker()})

	outcomes, err := s.Run(context.Background(), tasks("a", "b", "fail", "c"))
	require.Error(t, err)
	assert.True(t, errors.IsCorrectness(err))

	seen := map[string]bool{}
	for _, o := range outcomes {
		if o.Record != nil {
			seen[o.Record.Instance] = true
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestInProcessRunsHarness(t *testing.T) {
	registry := backend.NewRegistry(backend.Binaries{}, enginetest.Missing())
	h := harness.New(registry, harness.Options{LogDir: t.TempDir()})
	s := New(Config{MaxWorkers: 2, Local: InProcess{Harness: h}})

	outcomes, err := s.Run(context.Background(), []harness.Task{
		{Lengths: []float64{3, 1, 1, 2, 2, 1}, Backend: "gini", Label: "small"},
		{Lengths: []float64{4, 4}, Backend: "gini", Label: "pair"},
		{Lengths: []float64{1}, Backend: "cbc", Label: "missing"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	require.NotNil(t, outcomes[0].Record)
	assert.Equal(t, 5.0, outcomes[0].Record.MaxSide)
	require.NotNil(t, outcomes[1].Record)
	assert.Equal(t, 4.0, outcomes[1].Record.MaxSide)
	assert.NotEqual(t, outcomes[0].Record.LogPath, outcomes[1].Record.LogPath)
}
