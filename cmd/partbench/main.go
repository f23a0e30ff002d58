// Command partbench solves 2-way partition instances with several solver
// backends and records how each one converges.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/internal/logging"
	"github.com/wehubfusion/partbench/internal/tracing"
	"github.com/wehubfusion/partbench/pkg/concurrency"
	"github.com/wehubfusion/partbench/pkg/config"
)

const serviceName = "partbench"

// cli holds the state shared by all subcommands.
type cli struct {
	envFile string

	cfg    *config.Config
	logger *zap.Logger

	sentryEnabled   bool
	undoMaxprocs    func()
	shutdownTracing func(context.Context) error
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "partbench",
		Short: "Benchmark solvers on the 2-way number partitioning problem",
		Long: `partbench splits a list of lengths into two sides so that the longer side
is as short as possible, using interchangeable solver backends:

  gini   - SAT search over adder circuits (in-process)
  cbc    - COIN-OR CBC branch-and-bound (external binary)
  mip    - generic MIP through a sub-solver, HiGHS by default (external binary)
  highs  - alias for mip with HiGHS

Every run writes a structured log with its convergence history under LOG_DIR.
Settings come from the environment, optionally seeded from a .env file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file to seed the environment from")

	root.AddCommand(
		newSolveCmd(c),
		newMatrixCmd(c),
		newSummaryCmd(c),
		newWorkerCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	c.logger, err = logging.New(logging.Config{
		Debug:    cfg.Debug,
		FileOnly: cfg.LogToFileOnly,
		Dir:      cfg.LogDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.undoMaxprocs = concurrency.Initialize(c.logger)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     serviceName,
		}); err != nil {
			c.logger.Warn("Failed to initialize Sentry", zap.Error(err))
		} else {
			c.sentryEnabled = true
		}
	}

	tc := tracing.DefaultConfig(serviceName, cfg.OTLPEndpoint)
	tc.Environment = cfg.Environment
	c.shutdownTracing, err = tracing.Setup(cmd.Context(), tc, c.logger)
	if err != nil {
		c.logger.Warn("Tracing disabled", zap.Error(err))
		c.shutdownTracing = nil
	}

	c.logger.Debug("Configuration loaded", zap.String("config", cfg.String()))
	return nil
}

// teardown releases what setup acquired. It runs after the command
// whether or not it failed.
func (c *cli) teardown() {
	if c.shutdownTracing != nil {
		_ = tracing.Shutdown(c.shutdownTracing, c.logger)
	}
	if c.undoMaxprocs != nil {
		c.undoMaxprocs()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// report sends a fatal error to Sentry when it is configured.
func (c *cli) report(err error) {
	if !c.sentryEnabled {
		return
	}
	sentry.CaptureException(err)
	sentry.Flush(2 * time.Second)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	if err != nil {
		c.report(err)
	}
	c.teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
