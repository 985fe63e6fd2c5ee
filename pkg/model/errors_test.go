package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrCodeNotFound, Message: "Event 'evt_123' not found"}
	want := "NOT_FOUND: Event 'evt_123' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Event", "evt_abc")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeNotFound)
	}
	if err.Message != "Event 'evt_abc' not found" {
		t.Errorf("Message = %q, want %q", err.Message, "Event 'evt_abc' not found")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Invalid request",
		FieldError{Field: "user_id", Message: "required"},
	)
	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeValidation)
	}
	if len(err.Details) != 1 {
		t.Errorf("Details length = %d, want 1", len(err.Details))
	}
}

func TestDuplicateInvolvementError(t *testing.T) {
	var err error = &DuplicateInvolvementError{EventID: "evt_1", UserID: "u1"}
	wrapped := fmt.Errorf("invite batch: %w", err)

	if !errors.Is(wrapped, ErrDuplicateInvolvement) {
		t.Error("expected wrapped error to match ErrDuplicateInvolvement")
	}
	var dup *DuplicateInvolvementError
	if !errors.As(wrapped, &dup) {
		t.Fatal("expected errors.As to find DuplicateInvolvementError")
	}
	if dup.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", dup.UserID)
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Error("duplicate involvement must not match ErrNotFound")
	}
}
