package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/meetup/pkg/model"
)

type optOutResponse struct {
	UserID   string `json:"user_id"`
	OptedOut bool   `json:"opted_out"`
	Changed  bool   `json:"changed"`
}

// handleUserEvents returns the user's home view.
// GET /api/v1/users/{userID}/events
func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	view, err := s.homeView(r.Context(), userID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondOK(w, reqID, view)
}

// POST /api/v1/users/{userID}/opt-out
func (s *Server) handleOptOut(w http.ResponseWriter, r *http.Request) {
	s.setOptOut(w, r, true)
}

// POST /api/v1/users/{userID}/opt-in
func (s *Server) handleOptIn(w http.ResponseWriter, r *http.Request) {
	s.setOptOut(w, r, false)
}

func (s *Server) setOptOut(w http.ResponseWriter, r *http.Request, optOut bool) {
	reqID := RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	change := s.events.OptIn
	if optOut {
		change = s.events.OptOut
	}
	changed, err := change(r.Context(), userID)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	if changed {
		s.logger.Info("opt-out changed", "user_id", userID, "opted_out", optOut)
		s.refreshHome(r.Context(), userID)
	}
	respondOK(w, reqID, optOutResponse{UserID: userID, OptedOut: optOut, Changed: changed})
}

func (s *Server) homeView(ctx context.Context, userID string) (*model.HomeView, error) {
	evs, err := s.events.ListEventsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	optedOut, err := s.events.IsOptedOut(ctx, userID)
	if err != nil {
		return nil, err
	}
	return model.NewHomeView(userID, optedOut, evs), nil
}

// refreshHome publishes the user's home view. Failures are logged; the user
// action has already been stored.
func (s *Server) refreshHome(ctx context.Context, userID string) {
	if s.notifier == nil {
		return
	}
	view, err := s.homeView(ctx, userID)
	if err == nil {
		err = s.notifier.RefreshHome(ctx, userID, view)
	}
	if err != nil {
		s.logger.Warn("refresh home view", "user_id", userID, "error", err)
	}
}
