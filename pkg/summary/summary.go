// Package summary aggregates structured run logs into a comparison table.
package summary

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wehubfusion/partbench/pkg/convergence"
)

// DefaultPattern matches the structured run logs written by the harness.
const DefaultPattern = "output_*.log"

// DefaultFile is the conventional name of the comparison table.
const DefaultFile = "solver_comparison.csv"

// Row statuses for logs that never reached a result line.
const (
	StatusError      = "ERROR"
	StatusIncomplete = "INCOMPLETE"
)

var (
	runRe    = regexp.MustCompile(`^\[run\] instance=(.*?) solver=(\S+)`)
	doneRe   = regexp.MustCompile(`^\[done\] .*elapsed=([0-9.]+)s`)
	statusRe = regexp.MustCompile(`^\[result\] status=(.+?) max_side=([0-9.eE+\-]+)`)
)

// Row is one run in the comparison table.
type Row struct {
	Instance   string
	Solver     string
	Status     string
	MaxSide    float64
	TimeSec    float64
	ConvPoints int
	Log        string
}

// ParseLog reads one structured run log.
func ParseLog(path string) (Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return Row{}, err
	}
	defer f.Close()

	row := Row{Log: filepath.Base(path)}
	failed := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "[run] "):
			if m := runRe.FindStringSubmatch(line); m != nil {
				row.Instance, row.Solver = m[1], m[2]
			}
		case strings.HasPrefix(line, "[done] "):
			if m := doneRe.FindStringSubmatch(line); m != nil {
				row.TimeSec, _ = strconv.ParseFloat(m[1], 64)
			}
		case strings.HasPrefix(line, "[result] status="):
			if m := statusRe.FindStringSubmatch(line); m != nil {
				row.Status = m[1]
				row.MaxSide, _ = strconv.ParseFloat(m[2], 64)
			}
		case strings.HasPrefix(line, "[error]"):
			failed = true
		case strings.HasPrefix(line, convergence.LinePrefix) && line != convergence.Header:
			row.ConvPoints++
		}
	}
	if err := sc.Err(); err != nil {
		return Row{}, fmt.Errorf("read %s: %w", path, err)
	}

	if failed {
		row.Status = StatusError
	} else if row.Status == "" {
		row.Status = StatusIncomplete
	}
	return row, nil
}

// Collect parses every log in dir matching pattern. Rows are ordered by
// instance, solver and log name.
func Collect(ctx context.Context, dir, pattern string) ([]Row, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := ParseLog(p)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Instance != b.Instance {
			return a.Instance < b.Instance
		}
		if a.Solver != b.Solver {
			return a.Solver < b.Solver
		}
		return a.Log < b.Log
	})
	return rows, nil
}

// WriteCSV writes rows to path, creating parent directories.
func WriteCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"instance", "solver", "status", "max_side", "time_sec", "conv_points", "log"})
	for _, r := range rows {
		w.Write([]string{
			r.Instance,
			r.Solver,
			r.Status,
			convergence.FormatObjective(r.MaxSide),
			strconv.FormatFloat(r.TimeSec, 'f', 3, 64),
			strconv.Itoa(r.ConvPoints),
			r.Log,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
