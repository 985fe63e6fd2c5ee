package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/meetup/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, apiErr)
}

// respondServiceError maps event service errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, reqID, resource, id string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError(resource, id))
	case errors.Is(err, model.ErrAnnounced), errors.Is(err, model.ErrDuplicateInvolvement):
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.ErrCodeConflict,
			Message: err.Error(),
		})
	default:
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
	}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, apiErr *model.APIError) {
	resp := model.Response{
		RequestID: reqID,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
