package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/meetup/pkg/model"
)

// handleListEvents returns active events, or every stored event with ?all=true.
// GET /api/v1/events
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	evs, err := s.events.ListEvents(r.Context(), r.URL.Query().Get("all") == "true")
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondOK(w, reqID, evs)
}

// handleGetEvent returns one event.
// GET /api/v1/events/{id}
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	ev, err := s.events.GetEvent(r.Context(), id)
	if err != nil {
		respondServiceError(w, reqID, "event", id, err)
		return
	}
	respondOK(w, reqID, ev)
}

// handleAccept records an acceptance.
// POST /api/v1/events/{id}/accept
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.handleResponse(w, r, "accepted", s.events.AcceptInvitation)
}

// handleDecline records a decline.
// POST /api/v1/events/{id}/decline
func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.handleResponse(w, r, "declined", s.events.DeclineInvitation)
}

type respondFunc func(ctx context.Context, userID, eventID string) (*model.Event, error)

// handleResponse applies a user's answer to a pending invite. A user without
// a pending invite on the event gets 404 and the event is left untouched.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request, action string, apply respondFunc) {
	reqID := RequestIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	var req model.UserActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrCodeValidation,
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.UserID == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "user_id", Message: "user_id is required"}))
		return
	}

	ev, err := apply(r.Context(), req.UserID, eventID)
	if err != nil {
		respondServiceError(w, reqID, "pending invite on event", eventID, err)
		return
	}

	s.logger.Info("invite "+action, "event_id", eventID, "user_id", req.UserID)
	s.refreshHome(r.Context(), req.UserID)
	respondOK(w, reqID, ev)
}
