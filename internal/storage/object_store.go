package storage

import (
	"context"
	"io"
)

// UploadBucket holds the raw CSV files behind csv_uploads rows, keyed by
// "<upload id>/<filename>".
const UploadBucket = "uploads"

type Object struct {
	Name string
	Size int64
}

type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	// GetObject streams the stored object; the caller must close the reader.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	DeleteObjects(ctx context.Context, bucket, prefix string) error
}
