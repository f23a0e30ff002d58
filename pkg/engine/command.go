package engine

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/wehubfusion/partbench/pkg/errors"
)

// Command describes one external process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the parent environment.
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CommandRunner executes external solver binaries.
type CommandRunner interface {
	// LookPath resolves a binary name or path to an executable.
	LookPath(file string) (string, error)

	// Run executes cmd and waits for it to finish.
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// LookPath implements CommandRunner.
func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd.Run()
}

// Resolve locates binary through runner or returns an ENGINE_UNAVAILABLE error.
func Resolve(runner CommandRunner, engineName, binary string) (string, error) {
	path, err := runner.LookPath(binary)
	if err != nil {
		return "", errors.Unavailable(engineName+" ("+binary+")", err)
	}
	return path, nil
}
