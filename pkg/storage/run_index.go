package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunEntry summarizes one archived run.
type RunEntry struct {
	Backend           string    `json:"backend"`
	SubSolver         string    `json:"sub_solver,omitempty"`
	Status            string    `json:"status"`
	MaxSide           float64   `json:"max_side"`
	ElapsedSec        float64   `json:"elapsed_sec"`
	ConvergencePoints int       `json:"convergence_points"`
	LogBlob           string    `json:"log_blob"`
	SolverLogBlob     string    `json:"solver_log_blob,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// RunIndex maps run IDs to their entries for one instance.
// Format: { "<run_id>": RunEntry, ... }
type RunIndex map[string]*RunEntry

// RunIndexClient maintains one index blob per instance.
type RunIndexClient struct {
	store  BlobStore
	logger *zap.Logger
	mu     sync.Mutex // serializes read-modify-write of index blobs
}

// NewRunIndexClient creates a new run index client
func NewRunIndexClient(store BlobStore, logger *zap.Logger) *RunIndexClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunIndexClient{store: store, logger: logger}
}

// RunIndexPath returns the blob path of an instance's run index
func RunIndexPath(instance string) string {
	return fmt.Sprintf("runs/%s/index.json", instance)
}

// Append adds or replaces runID in the instance's index. A missing or
// unreadable index starts a fresh one.
func (c *RunIndexClient) Append(ctx context.Context, instance, runID string, entry *RunEntry) (string, error) {
	if c.store == nil {
		return "", fmt.Errorf("blob store not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blobPath := RunIndexPath(instance)
	index := make(RunIndex)
	existing, err := c.store.DownloadBlob(ctx, blobPath)
	if err != nil {
		c.logger.Debug("Run index doesn't exist yet, creating new", zap.String("blob_path", blobPath))
	} else if err := json.Unmarshal(existing, &index); err != nil {
		c.logger.Warn("Failed to parse existing run index, starting fresh",
			zap.String("blob_path", blobPath),
			zap.Error(err))
		index = make(RunIndex)
	}

	index[runID] = entry
	data, err := json.Marshal(index)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run index: %w", err)
	}

	blobURL, err := c.store.UploadBlob(ctx, blobPath, data, "application/json", map[string]string{
		"instance":      instance,
		"last_run_id":   runID,
		"run_count":     fmt.Sprintf("%d", len(index)),
		"last_modified": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload run index: %w", err)
	}
	return blobURL, nil
}

// Get downloads and parses an instance's run index
func (c *RunIndexClient) Get(ctx context.Context, instance string) (RunIndex, error) {
	if c.store == nil {
		return nil, fmt.Errorf("blob store not initialized")
	}
	data, err := c.store.DownloadBlob(ctx, RunIndexPath(instance))
	if err != nil {
		return nil, fmt.Errorf("failed to download run index: %w", err)
	}
	var index RunIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse run index: %w", err)
	}
	return index, nil
}
