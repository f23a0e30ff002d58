//go:build unix

package capture

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type savedFds struct {
	stdout int
	stderr int
}

func redirect(target int) (*savedFds, error) {
	os.Stdout.Sync()
	os.Stderr.Sync()

	stdout, err := unix.Dup(unix.Stdout)
	if err != nil {
		return nil, fmt.Errorf("dup stdout: %w", err)
	}
	stderr, err := unix.Dup(unix.Stderr)
	if err != nil {
		unix.Close(stdout)
		return nil, fmt.Errorf("dup stderr: %w", err)
	}
	saved := &savedFds{stdout: stdout, stderr: stderr}

	if err := dupTo(target, unix.Stdout); err != nil {
		saved.close()
		return nil, fmt.Errorf("redirect stdout: %w", err)
	}
	if err := dupTo(target, unix.Stderr); err != nil {
		dupTo(saved.stdout, unix.Stdout)
		saved.close()
		return nil, fmt.Errorf("redirect stderr: %w", err)
	}
	return saved, nil
}

func (s *savedFds) restore() error {
	os.Stdout.Sync()
	os.Stderr.Sync()

	errOut := dupTo(s.stdout, unix.Stdout)
	errErr := dupTo(s.stderr, unix.Stderr)
	s.close()
	if errOut != nil {
		return fmt.Errorf("restore stdout: %w", errOut)
	}
	if errErr != nil {
		return fmt.Errorf("restore stderr: %w", errErr)
	}
	return nil
}

func (s *savedFds) close() {
	unix.Close(s.stdout)
	unix.Close(s.stderr)
}
