package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Error     *APIError `json:"error"`
}

// UserActionRequest is the body of accept/decline requests.
type UserActionRequest struct {
	UserID string `json:"user_id"`
}

// TickResult reports a manually triggered scheduler tick.
type TickResult struct {
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
