package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "generations/2024/03/09/img-u1-abc.png", objectKey("/generations/", "img-u1-abc.png", now))
	assert.Equal(t, "2024/03/09/speech.mp3", objectKey("", "../speech.mp3", now))
}

func TestKeyFromURL(t *testing.T) {
	key, err := keyFromURL("https://cdn.example.com/", "https://cdn.example.com/generations/2024/03/09/a.png")
	require.NoError(t, err)
	assert.Equal(t, "generations/2024/03/09/a.png", key)

	_, err = keyFromURL("https://cdn.example.com", "https://evil.example.com/a.png")
	assert.Error(t, err)
}

func TestNewS3UploaderValidates(t *testing.T) {
	_, err := NewS3Uploader(Config{Region: "r", AccessKey: "a", SecretKey: "s", PublicBaseURL: "u"})
	assert.ErrorContains(t, err, "bucket")
	_, err = NewS3Uploader(Config{Bucket: "b", AccessKey: "a", SecretKey: "s", PublicBaseURL: "u"})
	assert.ErrorContains(t, err, "region")
}

func TestS3UploadAndDelete(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Content-Type")+" "+r.Header.Get("X-Amz-Meta-Userid"))
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := NewS3Uploader(Config{
		Endpoint:      srv.URL,
		Region:        "us-east-1",
		AccessKey:     "ak",
		SecretKey:     "sk",
		Bucket:        "artifacts",
		PublicBaseURL: "https://cdn.example.com",
		UsePathStyle:  true,
	})
	require.NoError(t, err)
	u.now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }

	url, err := u.Upload(context.Background(), []byte("png"), "img-u1-x.png", "image/png", map[string]string{"userid": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/generations/2024/01/02/img-u1-x.png", url)

	require.NoError(t, u.Delete(context.Background(), url))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, strings.HasPrefix(seen[0], "PUT /artifacts/generations/2024/01/02/img-u1-x.png image/png u1"), seen[0])
	assert.True(t, strings.HasPrefix(seen[1], "DELETE /artifacts/generations/2024/01/02/img-u1-x.png"), seen[1])
}

func TestS3UploadRejectsEmpty(t *testing.T) {
	u, err := NewS3Uploader(Config{Region: "r", AccessKey: "a", SecretKey: "s", Bucket: "b", PublicBaseURL: "https://cdn"})
	require.NoError(t, err)
	_, err = u.Upload(context.Background(), nil, "a.png", "image/png", nil)
	assert.ErrorContains(t, err, "no data")
}
