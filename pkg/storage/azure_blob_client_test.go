package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/partbench/pkg/harness"
)

const testConnectionString = "DefaultEndpointsProtocol=http;AccountName=test;AccountKey=dGVzdA==;BlobEndpoint=http://blob.local/test"

// fakeBlobService plays the blob REST API behind the SDK's transport hook.
type fakeBlobService struct {
	mu              sync.Mutex
	containerExists bool
	blobs           map[string][]byte
	contentTypes    map[string]string
	requests        []string
}

func newFakeBlobService() *fakeBlobService {
	return &fakeBlobService{blobs: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeBlobService) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.Method+" "+req.URL.Path)

	respond := func(status int, body []byte, header http.Header) (*http.Response, error) {
		if header == nil {
			header = http.Header{}
		}
		header.Set("x-ms-request-id", "req-1")
		return &http.Response{
			StatusCode:    status,
			Header:        header,
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: int64(len(body)),
			Request:       req,
		}, nil
	}

	// /test/<container>[/<blob>]
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/test/"), "/", 2)
	switch {
	case req.Method == http.MethodPut && req.URL.Query().Get("restype") == "container":
		if f.containerExists {
			h := http.Header{}
			h.Set("x-ms-error-code", "ContainerAlreadyExists")
			return respond(http.StatusConflict, nil, h)
		}
		f.containerExists = true
		return respond(http.StatusCreated, nil, nil)
	case req.Method == http.MethodPut && len(parts) == 2:
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		f.blobs[parts[1]] = data
		f.contentTypes[parts[1]] = headerValue(req.Header, "x-ms-blob-content-type")
		return respond(http.StatusCreated, nil, nil)
	case req.Method == http.MethodGet && len(parts) == 2:
		data, ok := f.blobs[parts[1]]
		if !ok {
			h := http.Header{}
			h.Set("x-ms-error-code", "BlobNotFound")
			return respond(http.StatusNotFound, nil, h)
		}
		return respond(http.StatusOK, data, nil)
	}
	return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.URL)
}

// headerValue looks a header up ignoring case; the SDK sets x-ms-* headers
// under non-canonical keys.
func headerValue(h http.Header, key string) string {
	for k, v := range h {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func newTestClient(t *testing.T, svc *fakeBlobService) *AzureBlobClient {
	t.Helper()
	client, err := newAzureBlobClient(testConnectionString, "partbench-logs", zap.NewNop(), svc)
	require.NoError(t, err)
	return client
}

func TestNewAzureBlobClient(t *testing.T) {
	tests := []struct {
		name             string
		connectionString string
		containerName    string
		wantErr          bool
		errContains      string
		wantURL          string
	}{
		{
			name:          "empty connection string",
			containerName: "partbench-logs",
			wantErr:       true,
			errContains:   "connection string is required",
		},
		{
			name:             "empty container name",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			wantErr:          true,
			errContains:      "container name is required",
		},
		{
			name:             "missing key",
			connectionString: "AccountName=test",
			containerName:    "partbench-logs",
			wantErr:          true,
			errContains:      "lacks AccountName or AccountKey",
		},
		{
			name:             "public endpoint",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			containerName:    "partbench-logs",
			wantURL:          "https://test.blob.core.windows.net",
		},
		{
			name:             "azurite",
			connectionString: "UseDevelopmentStorage=true",
			containerName:    "partbench-logs",
			wantURL:          devBlobURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewAzureBlobClient(tt.connectionString, tt.containerName, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, client)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, client.serviceURL)
		})
	}
}

func TestParseConnectionString(t *testing.T) {
	params := parseConnectionString("AccountName=a; AccountKey=k==;;BlobEndpoint=http://x/a;junk")
	assert.Equal(t, map[string]string{
		"AccountName":  "a",
		"AccountKey":   "k==",
		"BlobEndpoint": "http://x/a",
	}, params)
}

func TestExtractBlobPath(t *testing.T) {
	client := newTestClient(t, newFakeBlobService())

	tests := []struct{ in, want string }{
		{"runs/a/cbc/output.log", "runs/a/cbc/output.log"},
		{"http://blob.local/test/partbench-logs/runs/a/cbc/output.log?sig=x", "runs/a/cbc/output.log"},
		{"/partbench-logs/runs/b%20c/index.json", "runs/b c/index.json"},
	}
	for _, tt := range tests {
		got, err := client.extractBlobPath(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := client.extractBlobPath("  ")
	assert.Error(t, err)
}

func TestAzureBlobClient_RoundTrip(t *testing.T) {
	svc := newFakeBlobService()
	client := newTestClient(t, svc)
	ctx := context.Background()

	blobURL, err := client.UploadBlob(ctx, "runs/x/gini/output.log", []byte("[run] instance=x"), logContentType, map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blobURL, "http://blob.local/test/partbench-logs/"), blobURL)
	blobPath, err := client.extractBlobPath(blobURL)
	require.NoError(t, err)
	assert.Equal(t, "runs/x/gini/output.log", blobPath)
	assert.Equal(t, logContentType, svc.contentTypes["runs/x/gini/output.log"])

	data, err := client.DownloadBlob(ctx, blobURL)
	require.NoError(t, err)
	assert.Equal(t, "[run] instance=x", string(data))

	_, err = client.DownloadBlob(ctx, "runs/missing.log")
	assert.Error(t, err)
}

func TestAzureBlobClient_ContainerAlreadyExists(t *testing.T) {
	svc := newFakeBlobService()
	svc.containerExists = true
	client := newTestClient(t, svc)

	_, err := client.UploadBlob(context.Background(), "a.log", []byte("x"), logContentType, nil)
	require.NoError(t, err)
	_, err = client.UploadBlob(context.Background(), "b.log", []byte("y"), logContentType, nil)
	require.NoError(t, err)

	containerCreates := 0
	for _, r := range svc.requests {
		if r == "PUT /test/partbench-logs" {
			containerCreates++
		}
	}
	assert.Equal(t, 1, containerCreates)
}

func writeRunLogs(t *testing.T, raw string) *harness.RunRecord {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "output_bp20_gini_20260101-000000-000000001.log")
	rawPath := filepath.Join(dir, "solver_bp20_gini_20260101-000000-000000001.log")
	require.NoError(t, os.WriteFile(logPath, []byte("[run] instance=bp20 solver=gini run_id=r1\n"), 0o644))
	require.NoError(t, os.WriteFile(rawPath, []byte(raw), 0o644))
	return &harness.RunRecord{
		RunID:         "r1",
		Instance:      "bp20",
		Backend:       "gini",
		Status:        "OPTIMAL",
		MaxSide:       19.3,
		ElapsedSec:    0.5,
		Timestamp:     time.Date(2026, 1, 1, 0, 0, 0, 1, time.UTC),
		LogPath:       logPath,
		SolverLogPath: rawPath,
	}
}

func TestLogArchiverDeliver(t *testing.T) {
	svc := newFakeBlobService()
	client := newTestClient(t, svc)
	archiver := NewLogArchiver(client, nil)

	rec := writeRunLogs(t, "#1 0.01s best:19.3 next:[]\n")
	require.NoError(t, archiver.Deliver(context.Background(), rec))

	assert.Contains(t, svc.blobs, "runs/bp20/gini/output_bp20_gini_20260101-000000-000000001.log")
	assert.Contains(t, svc.blobs, "runs/bp20/gini/solver_bp20_gini_20260101-000000-000000001.log")

	index, err := archiver.index.Get(context.Background(), "bp20")
	require.NoError(t, err)
	require.Contains(t, index, "r1")
	assert.Equal(t, "OPTIMAL", index["r1"].Status)
	assert.Equal(t, 19.3, index["r1"].MaxSide)
	assert.Equal(t, "runs/bp20/gini/output_bp20_gini_20260101-000000-000000001.log", index["r1"].LogBlob)

	rec2 := writeRunLogs(t, "")
	rec2.RunID = "r2"
	require.NoError(t, archiver.Deliver(context.Background(), rec2))

	index, err = archiver.index.Get(context.Background(), "bp20")
	require.NoError(t, err)
	assert.Len(t, index, 2)
	assert.Empty(t, index["r2"].SolverLogBlob)
}

func TestLogArchiverMissingLog(t *testing.T) {
	archiver := NewLogArchiver(newTestClient(t, newFakeBlobService()), nil)
	rec := &harness.RunRecord{RunID: "r", Instance: "x", Backend: "cbc", LogPath: filepath.Join(t.TempDir(), "gone.log")}
	assert.Error(t, archiver.Deliver(context.Background(), rec))
}

func TestBlobPath(t *testing.T) {
	rec := &harness.RunRecord{Instance: "Instância 2", Backend: "mip"}
	assert.Equal(t, "runs/Instancia_2/mip/output_x.log", BlobPath(rec, "/tmp/logs/output_x.log"))
}
