//go:build unix && !linux

package capture

import "golang.org/x/sys/unix"

func dupTo(oldfd, newfd int) error {
	return unix.Dup2(oldfd, newfd)
}
