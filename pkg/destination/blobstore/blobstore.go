// Package blobstore is the pluggable object-storage capability the
// table destination writes parquet files and its manifest through. It
// is grounded on the teacher's multi-backend credential story
// (pkg/auth/azure_entra.go, the AWS/GCS env-credential conventions
// spec.md §6 names) rather than on any single teacher file, since the
// teacher repo has no blob-store driver of its own — this package is
// enriched entirely from the rest of the retrieval pack
// (other_examples/manifests/iamramtin-bento's aws-sdk-go-v2/azblob/gcs
// dependency set).
package blobstore

import "context"

// Store is the narrow capability the table destination depends on:
// put/get whole objects by key and list keys under a prefix. None of
// the three backends expose more than this to pkg/destination/table.
type Store interface {
	// Put writes data to key, overwriting any prior object there.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the bytes at key, or ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key under prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Backend names the storage_backend config values spec.md §6 lists for
// the table-lake destination.
type Backend string

const (
	BackendObjectStore Backend = "object-store" // S3 / S3-compatible (MinIO)
	BackendAzureBlob   Backend = "azure-blob"
	BackendGCS         Backend = "gcs-like"
)

// ErrNotFound is returned by Get when key does not exist in the store.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "blobstore: object not found" }
