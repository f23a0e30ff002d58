// Package logging builds the zap logger used across partbench.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file written under the log directory in file-only mode.
const FileName = "partbench.log"

// Config selects where and how verbosely to log.
type Config struct {
	Debug    bool
	FileOnly bool
	Dir      string
}

// New builds a logger. By default it writes human-readable lines to stderr;
// in file-only mode it writes JSON to Dir/partbench.log instead.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.FileOnly {
		dir := cfg.Dir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(dir, FileName)
		zc.Encoding = "json"
		zc.OutputPaths = []string{path}
		zc.ErrorOutputPaths = []string{path}
	} else {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.OutputPaths = []string{"stderr"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("partbench"), nil
}
