package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/genstudio/internal/alert"
	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/observability/metrics"
	"github.com/digkill/genstudio/internal/provider"
	"github.com/digkill/genstudio/internal/ratelimit"
)

// CreditLedger is the slice of the ledger a generation needs.
type CreditLedger interface {
	Reserve(ctx context.Context, userID string, amount int, kind models.ArtifactKind) (*models.CreditReservation, error)
	CommitImage(ctx context.Context, reservationID string, img *models.Image) error
	CommitSpeech(ctx context.Context, reservationID string, sp *models.Speech) error
	Refund(ctx context.Context, reservationID, reason string) (bool, error)
}

type RateGate interface {
	Admit(ctx context.Context, fingerprint string) (ratelimit.Decision, error)
}

// ArtifactStore persists generated bytes and hands back a public URL.
type ArtifactStore interface {
	Upload(ctx context.Context, data []byte, filename, contentType string, metadata map[string]string) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

type GalleryInvalidator interface {
	Invalidate(ctx context.Context)
}

type GenerationConfig struct {
	ImageCost  int
	SpeechCost int
	Timeout    time.Duration
}

type GenerationDeps struct {
	Ledger    CreditLedger
	Gate      RateGate
	Images    provider.ImageGenerator
	Speeches  provider.SpeechGenerator
	Store     ArtifactStore
	Gallery   GalleryInvalidator
	Alerts    alert.Alerter
	Validator *Validator
}

// GenerationService turns a validated request into exactly one billed artifact. Credits are
// reserved before the provider is called and either committed together with the artifact row
// or refunded, so a failed generation never costs the user anything.
type GenerationService struct {
	cfg  GenerationConfig
	deps GenerationDeps
	log  *slog.Logger
}

func NewGenerationService(cfg GenerationConfig, deps GenerationDeps, log *slog.Logger) *GenerationService {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	return &GenerationService{cfg: cfg, deps: deps, log: log}
}

const settleTimeout = 30 * time.Second

var errUnauthenticated = apperr.New(apperr.KindUnauthenticated, "Unauthenticated user. Please sign in.")

// GenerateImage runs the image transaction for user. fingerprint identifies the caller for
// rate limiting, usually the client address.
func (s *GenerationService) GenerateImage(ctx context.Context, user *models.User, fingerprint string, in ImageInput) (*models.Image, error) {
	if err := s.deps.Validator.Validate(in); err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := s.admitAndReserve(ctx, user, fingerprint, s.cfg.ImageCost, models.ArtifactImage)
	if err != nil {
		s.observe(models.ArtifactImage, outcomeOf(err), started)
		return nil, err
	}

	// The provider call is slow; it runs to completion even if the client goes away.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	log := s.log.With("user_id", user.ID, "reservation_id", res.ID, "kind", models.ArtifactImage)
	prompt := fmt.Sprintf("%s in the style of %s", in.Prompt, in.EffectiveStyle())

	out, err := s.deps.Images.GenerateImage(runCtx, user.ID, prompt)
	if err == nil && (out == nil || len(out.Bytes) == 0) {
		err = errors.New("provider returned no image")
	}
	var encoded []byte
	if err == nil {
		encoded, err = toPNG(out.Bytes)
	}
	if err != nil {
		log.Error("image generation failed", "err", err)
		s.refund(runCtx, res, "generation failed")
		s.observe(models.ArtifactImage, "generation_failed", started)
		return nil, apperr.Wrap(apperr.KindGenerationFailed, "Failed to generate image. Please try again.", err)
	}

	filename := fmt.Sprintf("img-%s-%s.png", user.ID, uuid.NewString())
	url, err := s.deps.Store.Upload(runCtx, encoded, filename, "image/png", map[string]string{"userId": user.ID})
	if err != nil {
		log.Error("image upload failed", "err", err)
		s.refund(runCtx, res, "upload failed")
		s.observe(models.ArtifactImage, "storage_failed", started)
		return nil, apperr.Wrap(apperr.KindStorageFailed, "Failed to upload image. Please try again.", err)
	}

	revised := out.RevisedPrompt
	if revised == "" {
		revised = in.Prompt
	}
	img := &models.Image{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Prompt:        in.Prompt,
		Style:         in.EffectiveStyle(),
		RevisedPrompt: revised,
		ImageURL:      url,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.deps.Ledger.CommitImage(runCtx, res.ID, img); err != nil {
		log.Error("commit image failed", "err", err, "url", url)
		s.settleFailedCommit(runCtx, log, res, url)
		s.observe(models.ArtifactImage, "unexpected", started)
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}

	s.deps.Gallery.Invalidate(runCtx)
	s.observe(models.ArtifactImage, "success", started)
	log.Info("image generated", "image_id", img.ID, "duration", time.Since(started))
	return img, nil
}

func (s *GenerationService) GenerateSpeech(ctx context.Context, user *models.User, fingerprint string, in SpeechInput) (*models.Speech, error) {
	if in.Speed == 0 {
		in.Speed = 1
	}
	if err := s.deps.Validator.Validate(in); err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := s.admitAndReserve(ctx, user, fingerprint, s.cfg.SpeechCost, models.ArtifactSpeech)
	if err != nil {
		s.observe(models.ArtifactSpeech, outcomeOf(err), started)
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	log := s.log.With("user_id", user.ID, "reservation_id", res.ID, "kind", models.ArtifactSpeech)

	out, err := s.deps.Speeches.GenerateSpeech(runCtx, in.Text, in.Voice, in.Speed)
	if err == nil && (out == nil || len(out.Bytes) == 0) {
		err = errors.New("provider returned no audio")
	}
	if err != nil {
		log.Error("speech generation failed", "err", err)
		s.refund(runCtx, res, "generation failed")
		s.observe(models.ArtifactSpeech, "generation_failed", started)
		return nil, apperr.Wrap(apperr.KindGenerationFailed, "Failed to generate speech. Please try again.", err)
	}

	filename := fmt.Sprintf("speech-%s-%s.mp3", user.ID, uuid.NewString())
	url, err := s.deps.Store.Upload(runCtx, out.Bytes, filename, "audio/mpeg", map[string]string{"userId": user.ID})
	if err != nil {
		log.Error("speech upload failed", "err", err)
		s.refund(runCtx, res, "upload failed")
		s.observe(models.ArtifactSpeech, "storage_failed", started)
		return nil, apperr.Wrap(apperr.KindStorageFailed, "Failed to upload speech. Please try again.", err)
	}

	sp := &models.Speech{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Text:      in.Text,
		Voice:     in.Voice,
		Speed:     in.Speed,
		SpeechURL: url,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deps.Ledger.CommitSpeech(runCtx, res.ID, sp); err != nil {
		log.Error("commit speech failed", "err", err, "url", url)
		s.settleFailedCommit(runCtx, log, res, url)
		s.observe(models.ArtifactSpeech, "unexpected", started)
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}

	s.observe(models.ArtifactSpeech, "success", started)
	log.Info("speech generated", "speech_id", sp.ID, "duration", time.Since(started))
	return sp, nil
}

func (s *GenerationService) admitAndReserve(ctx context.Context, user *models.User, fingerprint string, cost int, kind models.ArtifactKind) (*models.CreditReservation, error) {
	decision, err := s.deps.Gate.Admit(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperr.RateLimited("Please slow down. Try again later.", decision.RetryAfter)
	}
	if user == nil {
		return nil, errUnauthenticated
	}

	res, err := s.deps.Ledger.Reserve(ctx, user.ID, cost, kind)
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return nil, apperr.Wrap(apperr.KindInsufficientCredits, "Not enough credits", err)
	case errors.Is(err, ledger.ErrUserNotFound):
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "User not found", err)
	case err != nil:
		s.log.Error("reserve credits", "user_id", user.ID, "kind", kind, "err", err)
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	return res, nil
}

// refund returns the reservation's credits and reports whether this call released them. A
// refund that cannot be written stays pending and is picked up by the reaper, but an operator
// hears about it now.
func (s *GenerationService) refund(ctx context.Context, res *models.CreditReservation, reason string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	ok, err := s.deps.Ledger.Refund(ctx, res.ID, reason)
	if err != nil {
		s.deps.Alerts.Critical(ctx, "credit refund failed",
			"reservation_id", res.ID, "user_id", res.UserID, "amount", res.Amount, "err", err.Error())
		return false
	}
	if !ok {
		s.log.Warn("reservation already settled, refund skipped", "reservation_id", res.ID)
	}
	return ok
}

// settleFailedCommit refunds after a commit error. The upload is deleted only once the refund
// proves the reservation was still pending; otherwise the commit may have landed and its row
// may point at the object.
func (s *GenerationService) settleFailedCommit(ctx context.Context, log *slog.Logger, res *models.CreditReservation, url string) {
	if s.refund(ctx, res, "commit failed") {
		s.discard(ctx, url)
		return
	}
	log.Warn("reservation not refunded, upload kept", "url", url)
}

func (s *GenerationService) discard(ctx context.Context, url string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := s.deps.Store.Delete(ctx, url); err != nil {
		s.log.Warn("delete orphaned upload", "url", url, "err", err)
	}
}

func (s *GenerationService) observe(kind models.ArtifactKind, outcome string, started time.Time) {
	metrics.GenerationsTotal.WithLabelValues(string(kind), outcome).Inc()
	if outcome == "success" {
		metrics.GenerationDurationSeconds.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
	}
}

func outcomeOf(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindRateLimited:
		return "rate_limited"
	case apperr.KindInsufficientCredits:
		return "insufficient_credits"
	case apperr.KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unexpected"
	}
}

// toPNG re-encodes provider output losslessly so every stored image has the same format.
func toPNG(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
