package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage stores uploaded solution images. Keys are slash separated
// and relative ("solutions/7/work.png"); PutObject reports where the object
// ended up so callers can persist that location.
type ObjectStorage interface {
	PutObject(ctx context.Context, key string, reader io.Reader, sizeBytes int64, contentType string) (string, error)

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	RemoveObject(ctx context.Context, key string) error
}
