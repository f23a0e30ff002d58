package harness

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CSVRenderer writes each run's convergence points to <Dir>/<log name>.csv,
// ready for external plotting tools.
type CSVRenderer struct {
	Dir string
}

// Render implements Renderer.
func (r CSVRenderer) Render(_ context.Context, rec *RunRecord) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(rec.LogPath), filepath.Ext(rec.LogPath)) + ".csv"
	f, err := os.Create(filepath.Join(r.Dir, name))
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time_sec", "objective", "status"}); err != nil {
		return err
	}
	for _, p := range rec.Points {
		row := []string{
			strconv.FormatFloat(p.Elapsed, 'f', 6, 64),
			strconv.FormatFloat(p.Objective, 'f', -1, 64),
			p.Status,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
