package ledger

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"sjsage522/discountworker/logger"
)

// BlobStore keeps the ledger JSON array in an Azure Storage blob
type BlobStore struct {
	client        *azblob.Client
	containerName string
	blobName      string
}

var _ Store = (*BlobStore)(nil)

// NewBlobStore authenticates with the default Azure credential chain
func NewBlobStore(ctx context.Context, accountName, containerName, blobName string) (*BlobStore, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	return newBlobStore(ctx, client, containerName, blobName)
}

// NewBlobStoreFromConnectionString is used with shared keys and the Azurite emulator
func NewBlobStoreFromConnectionString(ctx context.Context, connectionString, containerName, blobName string) (*BlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	return newBlobStore(ctx, client, containerName, blobName)
}

func newBlobStore(ctx context.Context, client *azblob.Client, containerName, blobName string) (*BlobStore, error) {
	s := &BlobStore{
		client:        client,
		containerName: containerName,
		blobName:      blobName,
	}

	if err := s.ensureContainer(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BlobStore) ensureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.containerName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create container %s: %w", s.containerName, err)
	}

	logger.ForLedger().Info().Str("container", s.containerName).Msg("Created container")
	return nil
}

// Load implements Store. A missing blob is an empty ledger.
func (s *BlobStore) Load(ctx context.Context) ([]string, error) {
	response, err := s.client.DownloadStream(ctx, s.containerName, s.blobName, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to download blob %s: %w", s.blobName, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob content: %w", err)
	}
	return decodeIDs(data)
}

// Save implements Store
func (s *BlobStore) Save(ctx context.Context, ids []string) error {
	data, err := encodeIDs(ids)
	if err != nil {
		return err
	}

	_, err = s.client.UploadBuffer(ctx, s.containerName, s.blobName, data, nil)
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", s.blobName, err)
	}
	return nil
}
