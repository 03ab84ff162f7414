package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// maxDocumentSize caps how much of a blob is read into memory
const maxDocumentSize = 1 << 20

// BlobDocumentStore implements DocumentStore on an Azure Blob Storage container.
// Each rule document is one blob named after its key.
type BlobDocumentStore struct {
	client    *azblob.Client
	container string
}

// NewBlobDocumentStore creates a store over container using client
func NewBlobDocumentStore(client *azblob.Client, container string) *BlobDocumentStore {
	return &BlobDocumentStore{client: client, container: container}
}

// NewBlobDocumentStoreFromConnectionString creates a client from a storage
// account connection string
func NewBlobDocumentStoreFromConnectionString(connectionString, container string) (*BlobDocumentStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return NewBlobDocumentStore(client, container), nil
}

// EnsureContainer creates the container if it does not exist
func (s *BlobDocumentStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", s.container, err)
	}
	return nil
}

// Exists reports whether a blob named key exists
func (s *BlobDocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	blob := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)

	_, err := blob.GetProperties(ctx, nil)
	if err != nil {
		if isBlobMissing(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blob %s in container %s: %w", key, s.container, err)
	}
	return true, nil
}

// Get downloads the blob named key
func (s *BlobDocumentStore) Get(ctx context.Context, key string) (*Document, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if isBlobMissing(err) {
			return nil, fmt.Errorf("%w: %s not found in container %s", ErrNoRules, key, s.container)
		}
		return nil, fmt.Errorf("failed to download blob %s: %w", key, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	if len(content) > maxDocumentSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidDocument, key, maxDocumentSize)
	}

	doc := &Document{Key: key, Content: content}
	if resp.LastModified != nil {
		doc.UpdatedAt = *resp.LastModified
	}
	return doc, nil
}

// Put uploads content as the blob named key, replacing any existing blob
func (s *BlobDocumentStore) Put(ctx context.Context, key string, content []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.container, key, content, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"updated": to.Ptr(time.Now().UTC().Format(time.RFC3339)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob named key
func (s *BlobDocumentStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err != nil {
		if isBlobMissing(err) {
			return fmt.Errorf("%w: %s not found in container %s", ErrNoRules, key, s.container)
		}
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// List returns the names of all rule document blobs in the container
func (s *BlobDocumentStore) List(ctx context.Context) ([]string, error) {
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr("rule."),
	})

	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs in container %s: %w", s.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func isBlobMissing(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return true
	}
	// HEAD responses carry no error body, so only the status is available
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}
