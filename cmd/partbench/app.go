package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	natsconn "github.com/wehubfusion/partbench/internal/nats"
	"github.com/wehubfusion/partbench/pkg/backend"
	"github.com/wehubfusion/partbench/pkg/concurrency"
	"github.com/wehubfusion/partbench/pkg/engine"
	"github.com/wehubfusion/partbench/pkg/harness"
	"github.com/wehubfusion/partbench/pkg/publish"
	"github.com/wehubfusion/partbench/pkg/scheduler"
	"github.com/wehubfusion/partbench/pkg/storage"
)

// app is the wiring behind solve and matrix.
type app struct {
	cli      *cli
	registry *backend.Registry
	sinks    []harness.Sink
	closers  []func() error
}

func (c *cli) newApp() *app {
	return &app{
		cli: c,
		registry: backend.NewRegistry(backend.Binaries{
			CBC:   c.cfg.CBCPath,
			HiGHS: c.cfg.HighsPath,
		}, engine.ExecRunner{}),
	}
}

// connectSinks enables the configured result sinks. A sink that cannot be
// set up is skipped with a warning.
func (a *app) connectSinks(ctx context.Context) {
	cfg, logger := a.cli.cfg, a.cli.logger

	if cfg.NATSURL != "" {
		nc := natsconn.DefaultConnectionConfig(cfg.NATSURL)
		nc.Logger = logger
		conn, err := natsconn.Connect(ctx, nc)
		if err != nil {
			logger.Warn("NATS publishing disabled", zap.Error(err))
		} else {
			pc := publish.DefaultConfig()
			pc.Subject = cfg.NATSSubject
			pc.Logger = logger
			a.sinks = append(a.sinks, publish.NewRunPublisher(conn, pc))
			a.closers = append(a.closers, func() error { return natsconn.Close(conn) })
			logger.Info("Publishing runs to NATS", zap.String("subject", cfg.NATSSubject))
		}
	}

	if cfg.AzureConnectionString != "" {
		client, err := storage.NewAzureBlobClient(cfg.AzureConnectionString, cfg.AzureContainer, logger)
		if err != nil {
			logger.Warn("Blob archiving disabled", zap.Error(err))
		} else {
			a.sinks = append(a.sinks, storage.NewLogArchiver(client, logger))
			logger.Info("Archiving run logs to blob storage", zap.String("container", cfg.AzureContainer))
		}
	}
}

func (a *app) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.cli.logger.Warn("Failed to close sink", zap.Error(err))
		}
	}
}

// newHarness builds a run harness. Descriptor redirection is only requested
// where a single run owns the process.
func (a *app) newHarness(redirect bool, sinks []harness.Sink) *harness.Harness {
	cfg := a.cli.cfg
	return harness.New(a.registry, harness.Options{
		LogDir:   cfg.LogDir,
		Engine:   cfg.EngineOptions(),
		Redirect: redirect,
		Plot:     cfg.PlotConvergence,
	},
		harness.WithLogger(a.cli.logger),
		harness.WithRenderer(harness.CSVRenderer{Dir: filepath.Join(cfg.LogDir, "plots")}),
		harness.WithSinks(sinks...),
	)
}

// newScheduler picks the pool kind: worker processes when every run captures
// its own descriptors (PER_RUN_LOG), goroutines otherwise.
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	cfg, logger := a.cli.cfg, a.cli.logger
	concurrency.CheckWorkers(logger, cfg.MaxThreads)

	local := scheduler.InProcess{Harness: a.newHarness(cfg.PerRunLog, a.sinks)}
	var pool scheduler.Executor
	if cfg.PerRunLog {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker executable: %w", err)
		}
		pool = scheduler.Subprocess{
			Path:   exe,
			Args:   []string{"worker", "--env-file", a.cli.envFile},
			Stderr: os.Stderr,
			Sinks:  a.sinks,
			Logger: logger,
		}
	} else {
		pool = scheduler.InProcess{Harness: a.newHarness(false, a.sinks)}
	}

	return scheduler.New(scheduler.Config{
		MaxWorkers: cfg.MaxThreads,
		Local:      local,
		Pool:       pool,
		Logger:     logger,
	}), nil
}
