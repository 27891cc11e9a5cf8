package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/auth"
	"github.com/digkill/genstudio/internal/service"
)

const maxWebhookBody = 1 << 20

// handleWebhook passes the raw body through untouched; the signature covers the exact bytes.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, "read body error", err))
		return
	}
	if err := s.deps.Fulfillment.HandleWebhook(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	images, err := s.deps.Gallery.PublicRecent(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"plans": s.deps.Checkout.ListPlans()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	dashboard, err := s.deps.Gallery.Dashboard(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var in service.ImageInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, _ := auth.UserFromContext(r.Context())
	img, err := s.deps.Generator.GenerateImage(r.Context(), user, fingerprint(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, img)
}

func (s *Server) handleGenerateSpeech(w http.ResponseWriter, r *http.Request) {
	var in service.SpeechInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, _ := auth.UserFromContext(r.Context())
	sp, err := s.deps.Generator.GenerateSpeech(r.Context(), user, fingerprint(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sp)
}

type visibilityRequest struct {
	IsPublic *bool `json:"isPublic"`
}

func (s *Server) handleImageVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.IsPublic == nil {
		s.writeError(w, r, apperr.New(apperr.KindValidation, "isPublic is required!"))
		return
	}
	user, _ := auth.UserFromContext(r.Context())
	imageID := chi.URLParam(r, "id")
	if err := s.deps.Gallery.SetImageVisibility(r.Context(), user, imageID, *req.IsPublic); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": imageID, "isPublic": *req.IsPublic})
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, _ := auth.UserFromContext(r.Context())
	url, err := s.deps.Checkout.Checkout(r.Context(), user, req.Plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
