// Package publish sends finished run records to a message broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/harness"
)

// ResultType classifies published messages
type ResultType string

const (
	ResultTypeSuccess ResultType = "success"
	ResultTypeError   ResultType = "error"
)

// Publisher is the broker surface used by RunPublisher. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds configuration for the run publisher
type Config struct {
	Subject    string        // Subject to publish runs to (default: "partbench.runs")
	MaxRetries int           // Maximum number of retry attempts (default: 3)
	RetryDelay time.Duration // Delay between retries (default: 1s)
	Logger     *zap.Logger   // Optional logger, nop when nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Subject:    "partbench.runs",
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Message is the published envelope. Run is set for successful runs and
// Failure for failed ones.
type Message struct {
	ResultType  ResultType         `json:"result_type"`
	PublishedAt time.Time          `json:"published_at"`
	Run         *harness.RunRecord `json:"run,omitempty"`
	Failure     *Failure           `json:"failure,omitempty"`
}

// Failure describes a run that produced no record.
type Failure struct {
	Instance  string `json:"instance"`
	Backend   string `json:"backend"`
	SubSolver string `json:"sub_solver,omitempty"`
	Items     int    `json:"items"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error"`
}

// RunPublisher publishes run records. It implements harness.FailureSink.
type RunPublisher struct {
	pub    Publisher
	config *Config
	logger *zap.Logger
}

// NewRunPublisher creates a publisher; a nil config uses DefaultConfig.
func NewRunPublisher(pub Publisher, config *Config) *RunPublisher {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunPublisher{pub: pub, config: config, logger: logger}
}

func validateRecord(rec *harness.RunRecord) error {
	if rec == nil {
		return fmt.Errorf("run record cannot be nil")
	}
	if rec.RunID == "" {
		return fmt.Errorf("run record RunID is required")
	}
	if rec.Backend == "" {
		return fmt.Errorf("run record Backend is required")
	}
	return nil
}

// Deliver implements harness.Sink.
func (p *RunPublisher) Deliver(ctx context.Context, rec *harness.RunRecord) error {
	if err := validateRecord(rec); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return p.send(ctx, Message{ResultType: ResultTypeSuccess, Run: rec},
		zap.String("run_id", rec.RunID))
}

// DeliverFailure implements harness.FailureSink.
func (p *RunPublisher) DeliverFailure(ctx context.Context, task harness.Task, runErr error) error {
	if runErr == nil {
		return fmt.Errorf("validation failed: run error is required")
	}
	if task.Backend == "" {
		return fmt.Errorf("validation failed: task Backend is required")
	}
	return p.send(ctx, Message{ResultType: ResultTypeError, Failure: &Failure{
		Instance:  task.Name(),
		Backend:   task.Backend,
		SubSolver: task.SubSolver,
		Items:     len(task.Lengths),
		Code:      errors.CodeOf(runErr),
		Error:     runErr.Error(),
	}}, zap.String("instance", task.Name()), zap.String("backend", task.Backend))
}

func (p *RunPublisher) send(ctx context.Context, msg Message, fields ...zap.Field) error {
	if p.pub == nil {
		return errors.ErrNotConnected
	}
	msg.PublishedAt = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.ResultType, err)
	}

	fields = append(fields, zap.String("subject", p.config.Subject), zap.String("result_type", string(msg.ResultType)))
	if err := p.publishWithRetry(ctx, p.config.Subject, data); err != nil {
		p.logger.Error("Failed to publish run", append(fields, zap.Error(err))...)
		return err
	}
	p.logger.Debug("Published run", fields...)
	return nil
}

func (p *RunPublisher) publishWithRetry(ctx context.Context, subject string, data []byte) error {
	if subject == "" {
		return errors.ErrInvalidSubject
	}
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Info("Retrying publish",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.config.MaxRetries+1),
				zap.String("subject", subject),
				zap.Duration("retry_delay", p.config.RetryDelay))
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled during retry: %w", ctx.Err())
			case <-time.After(p.config.RetryDelay):
			}
		}

		err := p.pub.Publish(subject, data)
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn("Publish attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.config.MaxRetries+1),
			zap.String("subject", subject),
			zap.Error(err))
	}

	return fmt.Errorf("%w after %d attempts: %w", errors.ErrPublishFailed, p.config.MaxRetries+1, lastErr)
}
