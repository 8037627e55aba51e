package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/legal-intel/pkg/logger"
	"github.com/feichai0017/legal-intel/pkg/storage/minio"
	"github.com/feichai0017/legal-intel/pkg/storage/s3"
)

// StorageType selects a blob backend.
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage archives raw document content and exported analysis results
// as keyed blobs. The keyed entity store (internal/store) remains the
// source of truth; blobs exist for audit and download.
type Storage interface {
	// Put stores a blob under key.
	Put(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get retrieves a blob by key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a blob.
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes blobs last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage creates a blob storage backend.
func NewStorage(storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
