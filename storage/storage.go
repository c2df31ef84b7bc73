package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlobStorage defines the interface for storing and retrieving binary data.
type BlobStorage interface {
	// Upload stores data from the reader at the specified path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download retrieves data from the specified path.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the data at the specified path.
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the specified path.
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a BlobStorage backend.
type Config struct {
	Type     string // "local" or "s3"
	BaseDir  string
	S3Bucket string
	S3Region string
	S3Prefix string
}

// New creates a BlobStorage implementation based on configuration.
func New(cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)

	case "s3":
		s3Storage, err := NewS3Storage(cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		s3Storage.prefix = strings.Trim(cfg.S3Prefix, "/")
		return s3Storage, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// SaveBytes writes data under a generated path of the form prefix/yyyy/mm/dd/<uuid>.<ext>
// and returns that path. Callers treat the path as opaque.
func SaveBytes(ctx context.Context, blobs BlobStorage, prefix, ext string, data []byte) (string, error) {
	p := path.Join(
		strings.Trim(prefix, "/"),
		time.Now().UTC().Format("2006/01/02"),
		uuid.NewString()+"."+strings.TrimPrefix(ext, "."),
	)
	if err := blobs.Upload(ctx, p, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return p, nil
}

// ReadBytes reads back a blob written by SaveBytes.
func ReadBytes(ctx context.Context, blobs BlobStorage, p string) ([]byte, error) {
	rc, err := blobs.Download(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
