// Package archive keeps a copy of every rendered artifact in object
// storage before it is submitted for signature.
package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Disabled is used when no archive bucket is configured.
type Disabled struct{}

func (Disabled) Put(context.Context, string, []byte) error { return nil }

type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Put(ctx context.Context, key string, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/pdf"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive close %s: %w", key, err)
	}
	return nil
}
