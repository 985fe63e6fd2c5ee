package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "Meetup API",
		Version:     "v1",
		Description: "Recurring group meetups: invitations, responses and announcements",
		Endpoints: []endpointInfo{
			{"/api/v1/events", []string{"GET"}, "Active events; ?all=true includes past events"},
			{"/api/v1/events/{id}", []string{"GET"}, "Single event detail"},
			{"/api/v1/events/{id}/accept", []string{"POST"}, "Accept a pending invite ({\"user_id\"})"},
			{"/api/v1/events/{id}/decline", []string{"POST"}, "Decline a pending invite ({\"user_id\"})"},
			{"/api/v1/users/{user_id}/events", []string{"GET"}, "A user's home view"},
			{"/api/v1/users/{user_id}/opt-out", []string{"POST"}, "Exclude a user from future invites"},
			{"/api/v1/users/{user_id}/opt-in", []string{"POST"}, "Include a user in future invites again"},
			{"/api/v1/admin/tick", []string{"POST"}, "Run one scheduler tick synchronously"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
