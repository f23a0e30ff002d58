package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"
)

// BlobStore stores run artifacts.
type BlobStore interface {
	UploadBlob(ctx context.Context, blobPath string, data []byte, contentType string, metadata map[string]string) (string, error)
	DownloadBlob(ctx context.Context, reference string) ([]byte, error)
}

// AzureBlobClient implements BlobStore for Azure Blob Storage using shared keys.
// Plain http endpoints are allowed so local Azurite instances work.
type AzureBlobClient struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	logger        *zap.Logger

	mu            sync.Mutex
	containerInit bool
}

// Azurite's well-known development account.
const (
	devAccountName = "devstoreaccount1"
	devAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
	devBlobURL     = "http://127.0.0.1:10000/devstoreaccount1"
)

// NewAzureBlobClient creates a new Azure Blob storage client from a standard connection string.
func NewAzureBlobClient(connectionString, containerName string, logger *zap.Logger) (*AzureBlobClient, error) {
	return newAzureBlobClient(connectionString, containerName, logger, nil)
}

func newAzureBlobClient(connectionString, containerName string, logger *zap.Logger, transport policy.Transporter) (*AzureBlobClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}
	acct, err := resolveAccount(connectionString)
	if err != nil {
		return nil, err
	}

	credential, err := azblob.NewSharedKeyCredential(acct.name, acct.key)
	if err != nil {
		return nil, fmt.Errorf("invalid shared key for account %s: %w", acct.name, err)
	}

	opts := &azblob.ClientOptions{}
	opts.InsecureAllowCredentialWithHTTP = strings.HasPrefix(strings.ToLower(acct.serviceURL), "http://")
	if transport != nil {
		opts.Transport = transport
		opts.Retry = policy.RetryOptions{MaxRetries: -1}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(acct.serviceURL, credential, opts)
	if err != nil {
		return nil, fmt.Errorf("blob client for %s: %w", acct.serviceURL, err)
	}
	return &AzureBlobClient{
		client:        client,
		serviceURL:    acct.serviceURL,
		containerName: containerName,
		logger:        logger,
	}, nil
}

type account struct {
	name       string
	key        string
	serviceURL string
}

// resolveAccount reads AccountName, AccountKey and the blob endpoint from a
// connection string. UseDevelopmentStorage=true selects the Azurite account.
func resolveAccount(connectionString string) (account, error) {
	if connectionString == "" {
		return account{}, fmt.Errorf("connection string is required")
	}
	params := parseConnectionString(connectionString)
	acct := account{
		name:       params["AccountName"],
		key:        params["AccountKey"],
		serviceURL: params["BlobEndpoint"],
	}
	if strings.EqualFold(params["UseDevelopmentStorage"], "true") {
		acct.name, acct.key = devAccountName, devAccountKey
		if acct.serviceURL == "" {
			acct.serviceURL = devBlobURL
		}
	}
	if acct.name == "" || acct.key == "" {
		return account{}, fmt.Errorf("connection string lacks AccountName or AccountKey")
	}
	if acct.serviceURL == "" {
		suffix := params["EndpointSuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		acct.serviceURL = fmt.Sprintf("https://%s.blob.%s", acct.name, suffix)
	}
	acct.serviceURL = strings.TrimRight(acct.serviceURL, "/")
	return acct, nil
}

// UploadBlob uploads data to the configured container and returns the blob URL.
func (a *AzureBlobClient) UploadBlob(ctx context.Context, blobPath string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if err := a.ensureContainer(ctx); err != nil {
		return "", err
	}

	metadataPtr := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		metadataPtr[k] = to.Ptr(v)
	}

	blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlockBlobClient(blobPath)
	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: metadataPtr,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType),
		},
	})
	if err != nil {
		a.logger.Error("Failed to upload to blob storage",
			zap.String("blob_path", blobPath),
			zap.Int("size", len(data)),
			zap.Error(err))
		return "", fmt.Errorf("blob upload failed: %w", err)
	}

	a.logger.Debug("Uploaded blob",
		zap.String("blob_path", blobPath),
		zap.Int("size_bytes", len(data)))

	return blobClient.URL(), nil
}

// DownloadBlob downloads blob contents by path or URL.
func (a *AzureBlobClient) DownloadBlob(ctx context.Context, reference string) ([]byte, error) {
	blobPath, err := a.extractBlobPath(reference)
	if err != nil {
		return nil, err
	}

	blobClient := a.client.ServiceClient().NewContainerClient(a.containerName).NewBlobClient(blobPath)
	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob data: %w", err)
	}
	return data, nil
}

func (a *AzureBlobClient) ensureContainer(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.containerInit {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if !errors.As(err, &respErr) || respErr.ErrorCode != "ContainerAlreadyExists" {
			return fmt.Errorf("failed to ensure container: %w", err)
		}
	}

	a.containerInit = true
	return nil
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		params[key] = value
	}
	return params
}

func (a *AzureBlobClient) extractBlobPath(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", fmt.Errorf("blob reference is required")
	}

	if strings.HasPrefix(strings.ToLower(ref), strings.ToLower(a.serviceURL)) {
		ref = ref[len(a.serviceURL):]
	}
	if idx := strings.Index(ref, "?"); idx != -1 {
		ref = ref[:idx]
	}
	if decoded, err := url.PathUnescape(ref); err == nil && decoded != "" {
		ref = decoded
	}
	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		ref = u.Path
	}

	ref = strings.TrimPrefix(ref, "/")
	ref = strings.TrimPrefix(ref, a.containerName+"/")
	if ref == "" {
		return "", fmt.Errorf("blob path is empty")
	}
	return ref, nil
}
