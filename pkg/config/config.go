// Package config loads partbench settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wehubfusion/partbench/pkg/engine"
)

// Source indicates where the configuration came from
type Source string

const (
	SourceEnvFile Source = "env_file"
	SourceEnvVar  Source = "environment_variable"
	SourceDefault Source = "default"
)

// MaxTimeLimit is the largest representable limit; longer ones are clamped.
const MaxTimeLimit = time.Duration(math.MaxInt64)

// DefaultLogDir is where per-run logs are written when LOG_DIR is unset.
const DefaultLogDir = "logs"

// DefaultNATSSubject is the subject run records are published on.
const DefaultNATSSubject = "partbench.runs"

// DefaultBlobContainer is the container run logs are archived to.
const DefaultBlobContainer = "partbench-logs"

// Config holds every knob partbench reads from the environment.
type Config struct {
	// Engine behavior
	TimeLimit          time.Duration
	SolverLog          bool
	SolverLogPath      string
	ConvergenceLogPath string
	LogToFileOnly      bool
	PerRunLog          bool
	Seed               int64

	// Harness and scheduler
	MaxThreads      int
	Debug           bool
	PlotConvergence bool
	LogDir          string

	// Solver binaries
	CBCPath   string
	HighsPath string

	// Sinks and observability
	NATSURL               string
	NATSSubject           string
	AzureConnectionString string
	AzureContainer        string
	OTLPEndpoint          string
	SentryDSN             string
	Environment           string

	Source Source
}

// Load reads the configuration. envFile is loaded first when it exists;
// variables already present in the process environment are never overridden.
func Load(envFile string) (*Config, error) {
	config := &Config{Source: SourceDefault}

	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			config.Source = SourceEnvFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if config.Source == SourceDefault && os.Getenv("SOLVER_TIME_LIMIT")+os.Getenv("MAX_THREADS")+os.Getenv("PER_RUN_LOG") != "" {
		config.Source = SourceEnvVar
	}

	// Non-numeric limits are ignored, zero means unlimited
	if seconds := getEnvFloat("SOLVER_TIME_LIMIT", 0); seconds > 0 {
		config.TimeLimit = secondsToDuration(seconds)
	}

	config.SolverLog = getEnvBool("SOLVER_LOG")
	config.SolverLogPath = getEnv("SOLVER_LOG_PATH", "")
	config.ConvergenceLogPath = getEnv("CONVERGENCE_LOG_PATH", "")
	config.LogToFileOnly = getEnvBool("LOG_TO_FILE_ONLY")
	config.PerRunLog = getEnvBool("PER_RUN_LOG")
	config.Seed = int64(getEnvInt("SOLVER_SEED", 0))

	// At least one worker
	config.MaxThreads = getEnvInt("MAX_THREADS", 1)
	if config.MaxThreads < 1 {
		config.MaxThreads = 1
	}

	config.Debug = getEnvBool("DEBUG")
	config.PlotConvergence = getEnvBool("PLOT_CONVERGENCE")
	config.LogDir = getEnv("LOG_DIR", DefaultLogDir)

	config.CBCPath = getEnv("CBC_PATH", "")
	config.HighsPath = getEnv("HIGHS_PATH", "")

	config.NATSURL = getEnv("NATS_URL", "")
	config.NATSSubject = getEnv("NATS_SUBJECT", DefaultNATSSubject)
	config.AzureConnectionString = getEnv("AZURE_STORAGE_CONNECTION_STRING", "")
	config.AzureContainer = getEnv("AZURE_STORAGE_CONTAINER", DefaultBlobContainer)
	config.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	config.SentryDSN = getEnv("SENTRY_DSN", "")
	config.Environment = getEnv("PARTBENCH_ENV", "development")

	return config, nil
}

// EngineOptions derives the engine run options. LogPath and ConvergencePath
// come from SOLVER_LOG_PATH and CONVERGENCE_LOG_PATH; the harness replaces
// them with per-run paths.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		TimeLimit:       c.TimeLimit,
		LogEnabled:      c.SolverLog,
		LogToFileOnly:   c.LogToFileOnly,
		PerRunLog:       c.PerRunLog,
		LogPath:         c.SolverLogPath,
		ConvergencePath: c.ConvergenceLogPath,
		Seed:            c.Seed,
	}
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float from environment variable with default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool reports whether the variable is set to "true" (any case)
func getEnvBool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{TimeLimit: %s, SolverLog: %t, LogToFileOnly: %t, PerRunLog: %t, MaxThreads: %d, LogDir: %s, Seed: %d, NATS: %t, Blob: %t, Tracing: %t, Source: %s}",
		c.TimeLimit,
		c.SolverLog,
		c.LogToFileOnly,
		c.PerRunLog,
		c.MaxThreads,
		c.LogDir,
		c.Seed,
		c.NATSURL != "",
		c.AzureConnectionString != "",
		c.OTLPEndpoint != "",
		c.Source,
	)
}

func secondsToDuration(seconds float64) time.Duration {
	if ns := seconds * float64(time.Second); ns < float64(MaxTimeLimit) {
		return time.Duration(ns)
	}
	return MaxTimeLimit
}
