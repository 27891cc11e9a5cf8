package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/models"
)

const (
	galleryCacheKey = "gallery:public"
	gallerySize     = 6
)

type ArtifactReader interface {
	ListImagesByUser(ctx context.Context, userID string) ([]models.Image, error)
	ListPublicImages(ctx context.Context, limit int) ([]models.Image, error)
	ListSpeechesByUser(ctx context.Context, userID string) ([]models.Speech, error)
	SetImageVisibility(ctx context.Context, imageID, userID string, public bool) (bool, error)
}

// JSONCache is a best-effort cache; misses and outages look the same.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type Dashboard struct {
	Credits  int             `json:"credits"`
	Images   []models.Image  `json:"images"`
	Speeches []models.Speech `json:"speeches"`
}

type GalleryService struct {
	artifacts ArtifactReader
	cache     JSONCache
	ttl       time.Duration
	log       *slog.Logger
}

func NewGalleryService(artifacts ArtifactReader, cache JSONCache, ttl time.Duration, log *slog.Logger) *GalleryService {
	return &GalleryService{artifacts: artifacts, cache: cache, ttl: ttl, log: log}
}

// PublicRecent returns the most recent public images, served from cache when possible.
func (s *GalleryService) PublicRecent(ctx context.Context) ([]models.Image, error) {
	var images []models.Image
	if s.cache.GetJSON(ctx, galleryCacheKey, &images) {
		return images, nil
	}
	images, err := s.artifacts.ListPublicImages(ctx, gallerySize)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if images == nil {
		images = []models.Image{}
	}
	s.cache.SetJSON(ctx, galleryCacheKey, images, s.ttl)
	return images, nil
}

func (s *GalleryService) Invalidate(ctx context.Context) {
	s.cache.Delete(ctx, galleryCacheKey)
}

func (s *GalleryService) Dashboard(ctx context.Context, user *models.User) (*Dashboard, error) {
	if user == nil {
		return nil, errUnauthenticated
	}
	images, err := s.artifacts.ListImagesByUser(ctx, user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	speeches, err := s.artifacts.ListSpeechesByUser(ctx, user.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if images == nil {
		images = []models.Image{}
	}
	if speeches == nil {
		speeches = []models.Speech{}
	}
	return &Dashboard{Credits: user.Credits, Images: images, Speeches: speeches}, nil
}

// SetImageVisibility publishes or hides one of the user's images.
func (s *GalleryService) SetImageVisibility(ctx context.Context, user *models.User, imageID string, public bool) error {
	if user == nil {
		return errUnauthenticated
	}
	ok, err := s.artifacts.SetImageVisibility(ctx, imageID, user.ID, public)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "Image not found")
	}
	s.Invalidate(ctx)
	s.log.Info("image visibility changed", "image_id", imageID, "user_id", user.ID, "public", public)
	return nil
}
