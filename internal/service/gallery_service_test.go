package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/models"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) GetJSON(_ context.Context, key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	return ok && json.Unmarshal(raw, dst) == nil
}

func (c *mapCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, _ := json.Marshal(v)
	c.data[key] = raw
}

func (c *mapCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

type stubArtifacts struct {
	public      []models.Image
	publicCalls int
	images      []models.Image
	speeches    []models.Speech
	owned       map[string]string
}

func (s *stubArtifacts) ListImagesByUser(context.Context, string) ([]models.Image, error) {
	return s.images, nil
}

func (s *stubArtifacts) ListPublicImages(_ context.Context, limit int) ([]models.Image, error) {
	s.publicCalls++
	if len(s.public) > limit {
		return s.public[:limit], nil
	}
	return s.public, nil
}

func (s *stubArtifacts) ListSpeechesByUser(context.Context, string) ([]models.Speech, error) {
	return s.speeches, nil
}

func (s *stubArtifacts) SetImageVisibility(_ context.Context, imageID, userID string, _ bool) (bool, error) {
	return s.owned[imageID] == userID, nil
}

func TestPublicRecentIsCachedUntilInvalidated(t *testing.T) {
	repo := &stubArtifacts{public: []models.Image{{ID: "i1", IsPublic: true}}}
	cache := &mapCache{data: map[string][]byte{}}
	svc := NewGalleryService(repo, cache, time.Minute, discardLogger())

	images, err := svc.PublicRecent(context.Background())
	require.NoError(t, err)
	assert.Len(t, images, 1)

	_, err = svc.PublicRecent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.publicCalls)

	svc.Invalidate(context.Background())
	_, err = svc.PublicRecent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.publicCalls)
}

func TestSetImageVisibilityOwnerOnly(t *testing.T) {
	repo := &stubArtifacts{owned: map[string]string{"i1": "u1"}}
	cache := &mapCache{data: map[string][]byte{galleryCacheKey: []byte("[]")}}
	svc := NewGalleryService(repo, cache, time.Minute, discardLogger())

	err := svc.SetImageVisibility(context.Background(), &models.User{ID: "u2"}, "i1", true)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Contains(t, cache.data, galleryCacheKey)

	require.NoError(t, svc.SetImageVisibility(context.Background(), &models.User{ID: "u1"}, "i1", true))
	assert.NotContains(t, cache.data, galleryCacheKey)
}

func TestDashboardNeverReturnsNilSlices(t *testing.T) {
	svc := NewGalleryService(&stubArtifacts{}, &mapCache{data: map[string][]byte{}}, time.Minute, discardLogger())

	d, err := svc.Dashboard(context.Background(), &models.User{ID: "u1", Credits: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, d.Credits)
	assert.NotNil(t, d.Images)
	assert.NotNil(t, d.Speeches)

	_, err = svc.Dashboard(context.Background(), nil)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}
