package convergence

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Recorder appends live improvement points to a structured log.
// A nil Recorder discards everything, so engines can call it unconditionally.
type Recorder struct {
	mu    sync.Mutex
	file  *os.File
	start time.Time
	count int
}

// OpenRecorder opens path for appending. An empty path yields a nil Recorder.
func OpenRecorder(path string, start time.Time) (*Recorder, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open convergence log: %w", err)
	}
	return &Recorder{file: f, start: start}, nil
}

// Record writes an improvement observed now.
func (r *Recorder) Record(objective float64) error {
	if r == nil {
		return nil
	}
	return r.RecordAt(time.Since(r.start).Seconds(), objective)
}

// RecordAt writes an improvement observed at elapsed seconds.
func (r *Recorder) RecordAt(elapsed, objective float64) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	line := FormatLine(Point{Elapsed: elapsed, Objective: objective, Status: StatusFeasible})
	if _, err := fmt.Fprintln(r.file, line); err != nil {
		return err
	}
	r.count++
	return nil
}

// Count returns how many points were recorded.
func (r *Recorder) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.file.Close()
}
