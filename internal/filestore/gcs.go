package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// GCS stores files as objects in a Google Cloud Storage bucket. It uses
// Application Default Credentials.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a storage client for bucket. Object names are prefixed with prefix.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (g *GCS) object(key string) (*storage.ObjectHandle, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return nil, ErrInvalidKey
	}
	name := key
	if g.prefix != "" {
		name = path.Join(g.prefix, key)
	}
	return g.client.Bucket(g.bucket).Object(name), nil
}

func (g *GCS) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	obj, err := g.object(key)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = "application/pdf"
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("finalize upload: %w", err)
	}
	return n, nil
}

func (g *GCS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := g.object(key)
	if err != nil {
		return nil, err
	}
	rc, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return rc, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete GCS object: %w", err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
