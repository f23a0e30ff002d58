package concurrency

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeRestores(t *testing.T) {
	before := runtime.GOMAXPROCS(0)
	undo := Initialize(zap.NewNop())
	assert.GreaterOrEqual(t, EffectiveCPUs(), 1)
	undo()
	assert.Equal(t, before, runtime.GOMAXPROCS(0))
}

func TestInitializeNilLogger(t *testing.T) {
	undo := Initialize(nil)
	undo()
}

func TestIsKubernetes(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	assert.False(t, IsKubernetes())
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
	assert.True(t, IsKubernetes())
}

func TestCheckWorkers(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	CheckWorkers(logger, 1)
	assert.Zero(t, logs.Len())

	CheckWorkers(logger, EffectiveCPUs()+1)
	assert.Equal(t, 1, logs.FilterMessage("MAX_THREADS exceeds available CPUs").Len())

	CheckWorkers(nil, 1000)
}
