//go:build linux

package capture

import "golang.org/x/sys/unix"

// linux/arm64 has no dup2 syscall, dup3 is available everywhere.
func dupTo(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}
