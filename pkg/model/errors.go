package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for event lifecycle operations. Callers match them with errors.Is.
var (
	// ErrNotFound is returned when an event, or a pending invite on it, does not exist.
	// It is an expected outcome for stale or duplicate user responses.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateInvolvement is returned when inviting a user who is already
	// invited, accepted, or declined on the event.
	ErrDuplicateInvolvement = errors.New("user already involved in event")

	// ErrInvalidCapacity is returned when an event would be created without
	// any candidates while a positive capacity is configured.
	ErrInvalidCapacity = errors.New("no candidates for event with positive capacity")

	// ErrNotAtCapacity is returned when finalizing an event whose accepted
	// count has not reached capacity.
	ErrNotAtCapacity = errors.New("event has not reached capacity")

	// ErrAnnounced is returned when mutating the participants of an announced event.
	ErrAnnounced = errors.New("event already announced")
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeConflict    ErrorCode = "CONFLICT"
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the HTTP API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrCodeValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError creates an INTERNAL_ERROR APIError.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrCodeInternal, Message: msg}
}

// DuplicateInvolvementError identifies the user that was already involved.
type DuplicateInvolvementError struct {
	EventID string
	UserID  string
}

func (e *DuplicateInvolvementError) Error() string {
	return fmt.Sprintf("user %s already involved in event %s", e.UserID, e.EventID)
}

// Is reports whether target is ErrDuplicateInvolvement.
func (e *DuplicateInvolvementError) Is(target error) bool {
	return target == ErrDuplicateInvolvement
}
