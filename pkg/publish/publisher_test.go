package publish

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/partbench/pkg/convergence"
	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/harness"
)

type fakeBroker struct {
	mu       sync.Mutex
	failures int
	subjects []string
	payloads [][]byte
}

func (b *fakeBroker) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	if b.failures > 0 {
		b.failures--
		return stderrors.New("nats: connection closed")
	}
	b.payloads = append(b.payloads, data)
	return nil
}

func record() *harness.RunRecord {
	return &harness.RunRecord{
		RunID:    "c1a9",
		Instance: "bp20_first_15",
		Backend:  "gini",
		Status:   "OPTIMAL",
		MaxSide:  19.3,
		Points:   []convergence.Point{{Elapsed: 0.2, Objective: 19.3, Status: "OPTIMAL"}},
	}
}

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "partbench.runs", cfg.Subject)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestDeliverPublishesEnvelope(t *testing.T) {
	broker := &fakeBroker{}
	p := NewRunPublisher(broker, fastConfig())

	require.NoError(t, p.Deliver(context.Background(), record()))
	require.Len(t, broker.payloads, 1)
	assert.Equal(t, []string{"partbench.runs"}, broker.subjects)

	var msg Message
	require.NoError(t, json.Unmarshal(broker.payloads[0], &msg))
	assert.Equal(t, ResultTypeSuccess, msg.ResultType)
	assert.Equal(t, "c1a9", msg.Run.RunID)
	assert.Equal(t, 19.3, msg.Run.MaxSide)
	require.Len(t, msg.Run.Points, 1)
}

func TestDeliverRetries(t *testing.T) {
	broker := &fakeBroker{failures: 2}
	p := NewRunPublisher(broker, fastConfig())

	require.NoError(t, p.Deliver(context.Background(), record()))
	assert.Len(t, broker.subjects, 3)
	assert.Len(t, broker.payloads, 1)
}

func TestDeliverGivesUp(t *testing.T) {
	broker := &fakeBroker{failures: 10}
	p := NewRunPublisher(broker, fastConfig())

	err := p.Deliver(context.Background(), record())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPublishFailed)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Len(t, broker.subjects, 4)
}

func TestDeliverCancelledDuringRetry(t *testing.T) {
	broker := &fakeBroker{failures: 10}
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Hour
	p := NewRunPublisher(broker, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Deliver(ctx, record())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, broker.subjects, 1)
}

func TestDeliverValidation(t *testing.T) {
	p := NewRunPublisher(&fakeBroker{}, nil)

	assert.Error(t, p.Deliver(context.Background(), nil))
	assert.Error(t, p.Deliver(context.Background(), &harness.RunRecord{Backend: "cbc"}))

	cfg := fastConfig()
	cfg.Subject = ""
	err := NewRunPublisher(&fakeBroker{}, cfg).Deliver(context.Background(), record())
	assert.ErrorIs(t, err, errors.ErrInvalidSubject)
}

func TestDeliverWithoutConnection(t *testing.T) {
	err := NewRunPublisher(nil, nil).Deliver(context.Background(), record())
	assert.True(t, errors.IsNotConnected(err))
}

func TestDeliverFailurePublishesErrorEnvelope(t *testing.T) {
	broker := &fakeBroker{}
	p := NewRunPublisher(broker, fastConfig())

	task := harness.Task{Lengths: []float64{1, 2, 3}, Backend: "mip", SubSolver: "highs", Label: "figure_21"}
	runErr := errors.Unavailable("mip (highs)", stderrors.New("exec: not found"))
	require.NoError(t, p.DeliverFailure(context.Background(), task, runErr))
	require.Len(t, broker.payloads, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(broker.payloads[0], &msg))
	assert.Equal(t, ResultTypeError, msg.ResultType)
	assert.Nil(t, msg.Run)
	require.NotNil(t, msg.Failure)
	assert.Equal(t, Failure{
		Instance:  "figure_21",
		Backend:   "mip",
		SubSolver: "highs",
		Items:     3,
		Code:      errors.CodeEngineUnavailable,
		Error:     runErr.Error(),
	}, *msg.Failure)
}

func TestDeliverFailureValidation(t *testing.T) {
	p := NewRunPublisher(&fakeBroker{}, nil)

	assert.Error(t, p.DeliverFailure(context.Background(), harness.Task{Backend: "cbc"}, nil))
	assert.Error(t, p.DeliverFailure(context.Background(), harness.Task{}, stderrors.New("boom")))

	err := NewRunPublisher(nil, nil).DeliverFailure(context.Background(), harness.Task{Backend: "cbc"}, stderrors.New("boom"))
	assert.True(t, errors.IsNotConnected(err))
}

func TestRunPublisherIsFailureSink(t *testing.T) {
	var _ harness.FailureSink = NewRunPublisher(&fakeBroker{}, nil)
}
