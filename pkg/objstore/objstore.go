package objstore

import (
	"context"
	"io"
	"time"
)

// PresignedUpload is everything a client needs to PUT an object directly.
type PresignedUpload struct {
	URL     string
	Method  string
	Headers map[string]string
	Expires time.Time
}

// Client is the object storage contract the media and reporting services
// program against. The local-disk implementation serves development and
// single-pod deployments; tests use in-memory fakes.
type Client interface {
	// PresignedUpload returns a URL the caller can upload the object to
	// without holding credentials.
	PresignedUpload(key, contentType string, ttl time.Duration) (*PresignedUpload, error)

	// SignedDownload returns a time-limited URL for reading the object.
	SignedDownload(key string, ttl time.Duration) (string, error)

	// Upload writes an object from the server side.
	Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error

	// Download opens the object for reading. Callers close the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
