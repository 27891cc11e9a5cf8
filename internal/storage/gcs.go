package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSUploader stores artifacts in a Google Cloud Storage bucket. Credentials come from the
// environment (application default credentials).
type GCSUploader struct {
	client        *gcs.Client
	bucket        string
	prefix        string
	publicBaseURL string
	now           func() time.Time
}

func NewGCSUploader(ctx context.Context, bucket, publicBaseURL, prefix string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if prefix == "" {
		prefix = "generations"
	}
	return &GCSUploader{
		client:        client,
		bucket:        bucket,
		prefix:        prefix,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/") + "/" + bucket,
		now:           time.Now,
	}, nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}

func (u *GCSUploader) Upload(ctx context.Context, data []byte, filename, contentType string, metadata map[string]string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	key := objectKey(u.prefix, filename, u.now())

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload to gcs: %w", err)
	}
	return u.publicBaseURL + "/" + key, nil
}

func (u *GCSUploader) Delete(ctx context.Context, publicURL string) error {
	key, err := keyFromURL(u.publicBaseURL, publicURL)
	if err != nil {
		return err
	}
	if err := u.client.Bucket(u.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete from gcs: %w", err)
	}
	return nil
}
