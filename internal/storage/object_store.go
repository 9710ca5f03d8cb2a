package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
)

// ObjectStore is the shared clip/video store. Implemented on GCS; small
// interface so tests can substitute an in-memory double.
type ObjectStore interface {
	// SignedReadURL returns a time-limited URL that ffmpeg can read the
	// object through.
	SignedReadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	// UploadFile copies a local file into the bucket at objectPath.
	UploadFile(ctx context.Context, localPath, objectPath string) error
	// Download reads the whole object into memory.
	Download(ctx context.Context, objectPath string) ([]byte, error)
	// Delete removes one object.
	Delete(ctx context.Context, objectPath string) error
}

// GCSStore implements ObjectStore on a single GCS bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// NewGCSStore creates a store using ambient application credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) SignedReadURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(objectPath, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign read URL for %s: %w", objectPath, err)
	}
	return url, nil
}

func (s *GCSStore) UploadFile(ctx context.Context, localPath, objectPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = "video/mp4"
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload %s: %w", objectPath, err)
	}
	return nil
}

func (s *GCSStore) Download(ctx context.Context, objectPath string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", objectPath, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectPath, err)
	}
	return data, nil
}

func (s *GCSStore) Delete(ctx context.Context, objectPath string) error {
	if err := s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", objectPath, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
