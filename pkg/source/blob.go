package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.uber.org/zap"
)

// AzureBlobFetcher fetches a join's candidate set from a JSON blob (a
// document or an array of documents) in Azure Blob Storage. Shared-key
// authentication keeps it compatible with local Azurite instances over HTTP.
type AzureBlobFetcher struct {
	client        *azblob.Client
	containerName string
	blobPath      string
	logger        *zap.Logger
}

// NewAzureBlobFetcher creates a fetcher from a standard connection string.
func NewAzureBlobFetcher(connectionString, containerName, blobPath string, logger *zap.Logger) (*AzureBlobFetcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if blobPath == "" {
		return nil, fmt.Errorf("blob path is required")
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobFetcher{
		client:        client,
		containerName: containerName,
		blobPath:      blobPath,
		logger:        logger,
	}, nil
}

// Fetch implements join.FetchFunc by downloading and decoding the blob.
func (f *AzureBlobFetcher) Fetch(ctx context.Context, metadata any) (any, error) {
	data, err := f.FetchBytes(ctx, metadata)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// FetchBytes implements join.FetchBytesFunc with the raw blob contents.
func (f *AzureBlobFetcher) FetchBytes(ctx context.Context, _ any) ([]byte, error) {
	containerClient := f.client.ServiceClient().NewContainerClient(f.containerName)
	blobClient := containerClient.NewBlobClient(f.blobPath)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		f.logger.Error("failed to download candidate set",
			zap.String("container", f.containerName),
			zap.String("blob_path", f.blobPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob data: %w", err)
	}

	f.logger.Debug("fetched candidate set",
		zap.String("blob_path", f.blobPath),
		zap.Int("size_bytes", len(data)))
	return data, nil
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}
