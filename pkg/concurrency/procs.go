// Package concurrency sizes the process for its container before any
// worker pool starts.
package concurrency

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

// Initialize sets GOMAXPROCS to the container CPU quota. It should run at
// the very start of main. The returned function restores the previous value.
func Initialize(logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		logger.Warn("Failed to set maxprocs", zap.Error(err))
		return func() {}
	}

	logger.Debug("Concurrency initialized",
		zap.Int("gomaxprocs", EffectiveCPUs()),
		zap.Bool("kubernetes", IsKubernetes()))
	return undo
}

// EffectiveCPUs returns the number of CPUs available, respecting cgroup limits
// once Initialize has run.
func EffectiveCPUs() int {
	return runtime.GOMAXPROCS(0)
}

// IsKubernetes reports whether the process runs in a Kubernetes pod.
func IsKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// CheckWorkers warns when more solver workers are requested than CPUs are
// available.
func CheckWorkers(logger *zap.Logger, workers int) {
	if logger == nil {
		return
	}
	if cpus := EffectiveCPUs(); workers > cpus {
		logger.Warn("MAX_THREADS exceeds available CPUs",
			zap.Int("max_threads", workers),
			zap.Int("cpus", cpus))
	}
}
