package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/harness"
)

const logContentType = "text/plain; charset=utf-8"

// LogArchiver uploads the log files of finished runs and records them in
// the per-instance run index. It implements harness.Sink.
type LogArchiver struct {
	store  BlobStore
	index  *RunIndexClient
	logger *zap.Logger
}

// NewLogArchiver creates an archiver over store.
func NewLogArchiver(store BlobStore, logger *zap.Logger) *LogArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogArchiver{
		store:  store,
		index:  NewRunIndexClient(store, logger),
		logger: logger,
	}
}

// BlobPath returns runs/<instance>/<backend>/<file name>.
func BlobPath(rec *harness.RunRecord, file string) string {
	return path.Join("runs", harness.SanitizeName(rec.Instance), harness.SanitizeName(rec.Backend), filepath.Base(file))
}

// Deliver implements harness.Sink. An empty raw log is not uploaded.
func (a *LogArchiver) Deliver(ctx context.Context, rec *harness.RunRecord) error {
	metadata := map[string]string{
		"run_id":   rec.RunID,
		"instance": rec.Instance,
		"backend":  rec.Backend,
		"status":   rec.Status,
	}

	entry := &RunEntry{
		Backend:           rec.Backend,
		SubSolver:         rec.SubSolver,
		Status:            rec.Status,
		MaxSide:           rec.MaxSide,
		ElapsedSec:        rec.ElapsedSec,
		ConvergencePoints: len(rec.Points),
		Timestamp:         rec.Timestamp,
	}

	logBlob, err := a.upload(ctx, rec, rec.LogPath, metadata)
	if err != nil {
		return err
	}
	entry.LogBlob = logBlob

	if rec.SolverLogPath != "" {
		blobPath, err := a.upload(ctx, rec, rec.SolverLogPath, metadata)
		if err != nil {
			return err
		}
		entry.SolverLogBlob = blobPath
	}

	if _, err := a.index.Append(ctx, harness.SanitizeName(rec.Instance), rec.RunID, entry); err != nil {
		return err
	}
	a.logger.Debug("Archived run logs",
		zap.String("run_id", rec.RunID),
		zap.String("log_blob", entry.LogBlob))
	return nil
}

// upload stores file and returns its blob path, or "" for an empty file.
func (a *LogArchiver) upload(ctx context.Context, rec *harness.RunRecord, file string, metadata map[string]string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	if len(data) == 0 {
		return "", nil
	}
	blobPath := BlobPath(rec, file)
	if _, err := a.store.UploadBlob(ctx, blobPath, data, logContentType, metadata); err != nil {
		return "", err
	}
	return blobPath, nil
}
