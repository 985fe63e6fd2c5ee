package server

import (
	"net/http"

	"github.com/me/meetup/pkg/model"
)

// handleTick runs one scheduler tick and waits for it.
// POST /api/v1/admin/tick
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if s.scheduler == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrCodeUnavailable,
			Message: "scheduler not configured",
		})
		return
	}

	start := s.clock.Now()
	if err := s.scheduler.Tick(r.Context()); err != nil {
		s.logger.Error("manual tick failed", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	s.logger.Info("manual tick complete")
	respondOK(w, reqID, model.TickResult{
		StartedAt: start,
		Duration:  s.clock.Now().Sub(start).String(),
	})
}
