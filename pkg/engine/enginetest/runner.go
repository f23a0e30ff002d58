// Package enginetest provides a scripted engine.CommandRunner for testing
// command-line engines without their binaries installed.
package enginetest

import (
	"context"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/wehubfusion/partbench/pkg/engine"
)

// Runner records every command and delegates execution to Handle.
type Runner struct {
	// Available maps binary names to resolved paths. A nil map resolves
	// every name to /opt/solvers/bin/<name>.
	Available map[string]string

	// Handle plays the solver: it may write to cmd.Stdout and create the
	// files named in cmd.Args.
	Handle func(cmd engine.Command) error

	mu    sync.Mutex
	calls []engine.Command
}

// Missing returns a runner on which no binary resolves.
func Missing() *Runner {
	return &Runner{Available: map[string]string{}}
}

// LookPath implements engine.CommandRunner.
func (r *Runner) LookPath(file string) (string, error) {
	if r.Available == nil {
		return filepath.Join("/opt/solvers/bin", filepath.Base(file)), nil
	}
	if path, ok := r.Available[file]; ok {
		return path, nil
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

// Run implements engine.CommandRunner.
func (r *Runner) Run(_ context.Context, cmd engine.Command) error {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()
	if r.Handle == nil {
		return nil
	}
	return r.Handle(cmd)
}

// Calls returns the commands run so far.
func (r *Runner) Calls() []engine.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Command, len(r.calls))
	copy(out, r.calls)
	return out
}
