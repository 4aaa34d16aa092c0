package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureConfig configures the azure-blob backend. Per spec.md §6,
// credentials (AZURE_STORAGE_ACCOUNT / AZURE_STORAGE_KEY, or a service
// principal via AZURE_* env vars consumed by azidentity's default
// credential chain) are never read from the config file.
type AzureConfig struct {
	AccountURL    string // https://<account>.blob.core.windows.net
	ContainerName string
	AccountKey    string // optional: shared-key auth instead of azidentity
	AccountName   string
}

// AzureBlobStore implements Store on azblob, adapted from the
// teacher's azidentity credential-chain usage in
// pkg/auth/azure_entra.go, pointed at Blob Storage instead of Entra ID
// token acquisition.
type AzureBlobStore struct {
	client *container.Client
}

func NewAzureBlobStore(cfg AzureConfig) (*AzureBlobStore, error) {
	var client *container.Client
	var err error

	if cfg.AccountKey != "" && cfg.AccountName != "" {
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("azure shared key credential: %w", credErr)
		}
		client, err = container.NewClientWithSharedKeyCredential(cfg.AccountURL+"/"+cfg.ContainerName, cred, nil)
	} else {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("azure default credential chain: %w", credErr)
		}
		client, err = container.NewClient(cfg.AccountURL+"/"+cfg.ContainerName, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create azure blob container client: %w", err)
	}
	return &AzureBlobStore{client: client}, nil
}

func (s *AzureBlobStore) Put(ctx context.Context, key string, data []byte) error {
	blob := s.client.NewBlockBlobClient(key)
	_, err := blob.UploadBuffer(ctx, data, nil)
	if err != nil {
		return fmt.Errorf("azure blob put %s: %w", key, err)
	}
	return nil
}

func (s *AzureBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	blob := s.client.NewBlobClient(key)
	resp, err := blob.DownloadStream(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("azure blob get %s: %w", key, err)
	}
	defer resp.Body.Close()
	buf := bytes.NewBuffer(nil)
	reader := resp.NewRetryReader(ctx, &azblob.RetryReaderOptions{})
	defer reader.Close()
	if _, err := io.Copy(buf, reader); err != nil {
		return nil, fmt.Errorf("azure blob read body %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (s *AzureBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := s.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure blob list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}
