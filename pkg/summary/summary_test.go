package summary

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okLog = `[run] instance=bp20 first solver=cbc run_id=7d4f
[convergence] time_sec,objective,status
[done] instance=bp20 first solver=cbc elapsed=0.412s
[result] status=Integer Feasible max_side=19.3
[result] sum_a=19.3 sum_b=19.3
[result] side_a=[0, 1, 2, 4, 6, 12]
[result] side_b=[3, 5, 7, 8, 9, 10, 11, 13, 14]
[solver_log_begin]
Cbc0010I After 0 nodes, 1 on tree, 19.5 best solution, best possible 19.3 (0.01 seconds)
[solver_log_end]
[convergence] 0.010000,19.5,FEASIBLE
[convergence] 0.412000,19.3,Integer Feasible
`

const failedLog = `[run] instance=figure_21 solver=mip sub_solver=highs run_id=11aa
[convergence] time_sec,objective,status
[error] instance=figure_21 solver=mip elapsed=0.001s error="[ENGINE_UNAVAILABLE] mip (highs) is not available"
`

func writeLogs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestParseLog(t *testing.T) {
	dir := writeLogs(t, map[string]string{"output_bp20_first_cbc_1.log": okLog})

	row, err := ParseLog(filepath.Join(dir, "output_bp20_first_cbc_1.log"))
	require.NoError(t, err)
	assert.Equal(t, Row{
		Instance:   "bp20 first",
		Solver:     "cbc",
		Status:     "Integer Feasible",
		MaxSide:    19.3,
		TimeSec:    0.412,
		ConvPoints: 2,
		Log:        "output_bp20_first_cbc_1.log",
	}, row)
}

func TestParseLogStatuses(t *testing.T) {
	dir := writeLogs(t, map[string]string{
		"output_failed.log":     failedLog,
		"output_incomplete.log": "[run] instance=x solver=gini run_id=1\n[convergence] time_sec,objective,status\n",
	})

	row, err := ParseLog(filepath.Join(dir, "output_failed.log"))
	require.NoError(t, err)
	assert.Equal(t, StatusError, row.Status)
	assert.Equal(t, "mip", row.Solver)
	assert.Zero(t, row.ConvPoints)

	row, err = ParseLog(filepath.Join(dir, "output_incomplete.log"))
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, row.Status)
}

func TestParseLogMissingFile(t *testing.T) {
	_, err := ParseLog(filepath.Join(t.TempDir(), "nope.log"))
	assert.Error(t, err)
}

func TestCollectAndWriteCSV(t *testing.T) {
	dir := writeLogs(t, map[string]string{
		"output_b.log":  strings.ReplaceAll(okLog, "bp20 first", "zeta"),
		"output_a.log":  okLog,
		"output_c.log":  failedLog,
		"solver_a.log":  "raw engine output",
		"unrelated.txt": "ignored",
	})

	rows, err := Collect(context.Background(), dir, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "bp20 first", rows[0].Instance)
	assert.Equal(t, "figure_21", rows[1].Instance)
	assert.Equal(t, "zeta", rows[2].Instance)

	out := filepath.Join(t.TempDir(), "reports", DefaultFile)
	require.NoError(t, WriteCSV(out, rows))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "instance,solver,status,max_side,time_sec,conv_points,log", lines[0])
	assert.Equal(t, "bp20 first,cbc,Integer Feasible,19.3,0.412,2,output_a.log", lines[1])
	assert.Equal(t, "figure_21,mip,ERROR,0,0.000,0,output_c.log", lines[2])
}

func TestCollectCancelled(t *testing.T) {
	dir := writeLogs(t, map[string]string{"output_a.log": okLog})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(ctx, dir, DefaultPattern)
	assert.ErrorIs(t, err, context.Canceled)
}
