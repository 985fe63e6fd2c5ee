package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
	Store     string `json:"store"`
	Capacity  int    `json:"capacity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	storeStatus := "ok"
	if _, err := s.events.ListActiveEvents(r.Context()); err != nil {
		storeStatus = "error: " + err.Error()
	}

	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: s.schedulerState(),
		Store:     storeStatus,
		Capacity:  s.events.Capacity(),
	})
}

func (s *Server) schedulerState() string {
	if s.scheduler == nil {
		return "disabled"
	}
	if r, ok := s.scheduler.(interface{ Running() bool }); ok && r.Running() {
		return "running"
	}
	return "idle"
}
