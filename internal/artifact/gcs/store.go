// Package gcs implements the artifact store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"imagepack/internal/artifact"
)

// Store keeps archives in a GCS bucket. Expiry is left to a bucket lifecycle
// rule rather than an in-process sweep.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New builds a Store and fails fast if the bucket is not reachable.
// Authentication uses Application Default Credentials.
func New(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close gcs client after attrs failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	return &Store{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// Put uploads the archive bytes under the sanitized key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	w := s.object(key).NewWriter(ctx)
	w.ContentType = "application/zip"
	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			s.logger.Warn("close gcs writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize artifact %s: %w", key, err)
	}
	return nil
}

// Get downloads the archive and deletes the object. Delete failure is
// swallowed, matching the read-once contract of the other backends.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj := s.object(key)
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, artifact.ErrNotFound
		}
		return nil, fmt.Errorf("open artifact %s: %w", key, err)
	}
	data, err := io.ReadAll(r)
	if closeErr := r.Close(); closeErr != nil {
		s.logger.Warn("close gcs reader failed", zap.Error(closeErr))
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	if err := obj.Delete(ctx); err != nil {
		s.logger.Warn("artifact delete after read failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return data, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}

func (s *Store) object(key string) *storage.ObjectHandle {
	name := artifact.SanitizeKey(key) + ".zip"
	if s.prefix != "" {
		name = path.Join(s.prefix, name)
	}
	return s.client.Bucket(s.bucket).Object(name)
}
