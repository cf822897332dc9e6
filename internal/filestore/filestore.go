// Package filestore keeps the original bytes of uploaded bank statements.
package filestore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open and Delete for unknown keys.
var ErrNotFound = errors.New("stored file not found")

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid file key")

// Store persists opaque blobs under a key.
type Store interface {
	// Save writes r under key and returns the number of bytes written.
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
