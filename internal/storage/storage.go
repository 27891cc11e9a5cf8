// Package storage puts generated artifacts in public object storage.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Store uploads artifacts and returns their public URL.
type Store interface {
	Upload(ctx context.Context, data []byte, filename, contentType string, metadata map[string]string) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

func objectKey(prefix, filename string, now time.Time) string {
	now = now.UTC()
	prefix = strings.Trim(prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), path.Base(filename))
}

func keyFromURL(publicBaseURL, publicURL string) (string, error) {
	base := strings.TrimRight(publicBaseURL, "/") + "/"
	if !strings.HasPrefix(publicURL, base) {
		return "", fmt.Errorf("url %q is not under %q", publicURL, base)
	}
	return strings.TrimPrefix(publicURL, base), nil
}
