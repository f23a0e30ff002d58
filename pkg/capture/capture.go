// Package capture points the process-wide stdout and stderr descriptors at a
// file for the duration of a call, so output written by native code or child
// processes that inherit descriptors 1 and 2 lands in a per-run log.
//
// Redirection affects the whole process. Callers must not run it from
// concurrent goroutines that expect their own capture; the package serializes
// overlapping calls instead of interleaving them.
package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var mu sync.Mutex

// Run redirects descriptors 1 and 2 into path (appending) while fn executes.
// The original descriptors are restored on every exit path, including panics.
func Run(path string, fn func() error) (err error) {
	restore, err := Redirect(path)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

// Redirect starts a redirection and returns the function that undoes it.
// Overlapping redirections block until the previous one is restored.
func Redirect(path string) (restore func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	mu.Lock()
	saved, err := redirect(int(f.Fd()))
	if err != nil {
		mu.Unlock()
		f.Close()
		return nil, err
	}

	var once sync.Once
	restore = func() error {
		var rerr error
		once.Do(func() {
			rerr = saved.restore()
			if cerr := f.Close(); cerr != nil && rerr == nil {
				rerr = cerr
			}
			mu.Unlock()
		})
		return rerr
	}
	return restore, nil
}
