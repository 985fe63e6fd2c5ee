package store

import (
	"context"
	"errors"

	"github.com/me/meetup/pkg/model"
)

// ErrVersionConflict is returned by SetEvents and SetOptedOut when the
// collection was written by someone else after the caller's read.
var ErrVersionConflict = errors.New("collection version conflict")

// Snapshot is the full event collection at a given version.
type Snapshot struct {
	Events  []*model.Event
	Version int64
}

// OptOutSet is the opt-out set at a given version.
type OptOutSet struct {
	UserIDs []string
	Version int64
}

// Store persists the event collection and the opt-out set. It only offers
// full-collection reads and writes; each write is atomic.
type Store interface {
	// GetEvents returns every stored event and the collection version.
	GetEvents(ctx context.Context) (*Snapshot, error)

	// SetEvents replaces the whole collection. version must equal the version
	// of the snapshot the caller started from, otherwise ErrVersionConflict.
	SetEvents(ctx context.Context, events []*model.Event, version int64) error

	// GetOptedOut returns the users excluded from candidate selection and
	// the set's version.
	GetOptedOut(ctx context.Context) (*OptOutSet, error)

	// SetOptedOut replaces the opt-out set, with the same version rule as
	// SetEvents.
	SetOptedOut(ctx context.Context, userIDs []string, version int64) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
