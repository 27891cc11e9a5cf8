package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/genstudio/internal/apperr"
)

func (s *Server) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type grantRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleAdminGrantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.deps.Accounts.GrantCredits(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleAdminOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Orders.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if order == nil {
		s.writeError(w, r, apperr.New(apperr.KindOrderNotFound, "Order not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleAdminReap(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int{"refunded": s.deps.Reaper.RunOnce(r.Context())})
}
