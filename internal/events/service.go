// Package events owns the event collection: creation, invite state
// transitions, finalization, cancellation, and the opt-out set. It is the
// only writer of the event store.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/meetup/internal/clock"
	"github.com/me/meetup/internal/random"
	"github.com/me/meetup/internal/store"
	"github.com/me/meetup/pkg/model"
)

// maxWriteAttempts bounds re-read/retry cycles after a version conflict.
const maxWriteAttempts = 5

// Service mediates every read and write of the event collection.
//
// Mutations are applied to a fresh snapshot under mu and written back with the
// snapshot's version, so scheduler phases and inbound user actions never
// overwrite each other. A conflicting write from another process is retried
// against a re-read snapshot.
type Service struct {
	store    store.Store
	clock    clock.Clock
	random   random.Selector
	capacity int
	logger   *slog.Logger

	mu sync.Mutex
}

// NewService creates an event service enforcing the given capacity.
func NewService(st store.Store, clk clock.Clock, rnd random.Selector, capacity int, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		clock:    clk,
		random:   rnd,
		capacity: capacity,
		logger:   logger.With("component", "events"),
	}
}

// Capacity returns the configured participant target.
func (s *Service) Capacity() int {
	return s.capacity
}

// ListEvents returns events sorted by (scheduled time, ID). Expired events are
// included only if includeExpired is set.
func (s *Service) ListEvents(ctx context.Context, includeExpired bool) ([]*model.Event, error) {
	snap, err := s.store.GetEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	now := s.clock.Now()
	out := make([]*model.Event, 0, len(snap.Events))
	for _, ev := range snap.Events {
		if includeExpired || ev.IsActive(now) {
			out = append(out, ev)
		}
	}
	model.SortEvents(out)
	return out, nil
}

// ListActiveEvents returns events scheduled after now, sorted by (scheduled time, ID).
func (s *Service) ListActiveEvents(ctx context.Context) ([]*model.Event, error) {
	return s.ListEvents(ctx, false)
}

// ListEventsForUser returns active events the user is invited to, accepted, or declined.
func (s *Service) ListEventsForUser(ctx context.Context, userID string) ([]*model.Event, error) {
	active, err := s.ListActiveEvents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Event, 0)
	for _, ev := range active {
		if ev.IsInvolved(userID) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetEvent returns the event with the given ID, or model.ErrNotFound.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	snap, err := s.store.GetEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	for _, ev := range snap.Events {
		if ev.ID == eventID {
			return ev, nil
		}
	}
	return nil, model.ErrNotFound
}

// CreateEvent stores a new open event with one pending invite per candidate.
// With no candidates and a positive capacity nothing is stored and
// model.ErrInvalidCapacity is returned.
func (s *Service) CreateEvent(ctx context.Context, groupID string, at time.Time, candidateUserIDs []string) (*model.Event, error) {
	if len(candidateUserIDs) == 0 && s.capacity > 0 {
		return nil, model.ErrInvalidCapacity
	}

	ev := model.NewEvent("evt_"+uuid.New().String(), groupID, at, candidateUserIDs, s.clock.Now())
	err := s.mutate(ctx, func(events []*model.Event) ([]*model.Event, error) {
		return append(events, ev.Clone()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info("event created", "event_id", ev.ID, "group_id", groupID,
		"scheduled_time", at, "invites", len(ev.Invites))
	return ev, nil
}

// InviteUsers appends pending invites to the event. If any user is already
// involved, no invite is added and a *model.DuplicateInvolvementError is returned.
func (s *Service) InviteUsers(ctx context.Context, eventID string, userIDs []string) (*model.Event, error) {
	if len(userIDs) == 0 {
		return s.GetEvent(ctx, eventID)
	}
	ev, err := s.update(ctx, eventID, func(ev *model.Event) error {
		return ev.Invite(userIDs)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("users invited", "event_id", eventID, "users", userIDs)
	return ev, nil
}

// AcceptInvitation moves the user's pending invite to accepted. It returns
// model.ErrNotFound, leaving the event untouched, if there is no pending invite.
func (s *Service) AcceptInvitation(ctx context.Context, userID, eventID string) (*model.Event, error) {
	ev, err := s.update(ctx, eventID, func(ev *model.Event) error {
		return ev.Accept(userID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted", "event_id", eventID, "user_id", userID)
	return ev, nil
}

// DeclineInvitation moves the user's pending invite to declined. It returns
// model.ErrNotFound, leaving the event untouched, if there is no pending invite.
func (s *Service) DeclineInvitation(ctx context.Context, userID, eventID string) (*model.Event, error) {
	ev, err := s.update(ctx, eventID, func(ev *model.Event) error {
		return ev.Decline(userID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation declined", "event_id", eventID, "user_id", userID)
	return ev, nil
}

// ExpireInvitation declines on the user's behalf after the grace period.
func (s *Service) ExpireInvitation(ctx context.Context, userID, eventID string) (*model.Event, error) {
	ev, err := s.update(ctx, eventID, func(ev *model.Event) error {
		return ev.Decline(userID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation expired", "event_id", eventID, "user_id", userID)
	return ev, nil
}

// FinalizeEvent picks the reservation and expense users and marks the event
// announced. The event must have reached capacity.
func (s *Service) FinalizeEvent(ctx context.Context, eventID string) (*model.Event, error) {
	ev, err := s.update(ctx, eventID, func(ev *model.Event) error {
		if ev.Announced {
			return model.ErrAnnounced
		}
		if len(ev.Accepted) == 0 || len(ev.Accepted) < s.capacity {
			return model.ErrNotAtCapacity
		}
		reservation := s.random.Shuffle(ev.Accepted)[0]
		expense := reservation
		for _, u := range ev.Accepted {
			if u != reservation {
				expense = u
				break
			}
		}
		ev.Finalize(reservation, expense)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event finalized", "event_id", eventID,
		"reservation_user", ev.ReservationUser, "expense_user", ev.ExpenseUser)
	return ev, nil
}

// Persist replaces the stored event with the same ID.
func (s *Service) Persist(ctx context.Context, event *model.Event) error {
	replacement := event.Clone()
	return s.mutate(ctx, func(events []*model.Event) ([]*model.Event, error) {
		idx := slices.IndexFunc(events, func(ev *model.Event) bool { return ev.ID == event.ID })
		if idx < 0 {
			return nil, model.ErrNotFound
		}
		events[idx] = replacement
		return events, nil
	})
}

// MarkInviteSent stamps a pending invite as delivered at the given time. Both
// the invite and reminder timestamps are set. A non-empty token replaces the
// stored correlation token.
func (s *Service) MarkInviteSent(ctx context.Context, eventID, userID string, at time.Time, token string) error {
	_, err := s.update(ctx, eventID, func(ev *model.Event) error {
		idx := ev.FindInvite(userID)
		if idx < 0 {
			return model.ErrNotFound
		}
		sent, reminded := at, at
		ev.Invites[idx].InviteSentAt = &sent
		ev.Invites[idx].ReminderSentAt = &reminded
		if token != "" {
			ev.Invites[idx].CorrelationToken = token
		}
		return nil
	})
	return err
}

// MarkReminderSent stamps the last reminder time of a pending invite.
func (s *Service) MarkReminderSent(ctx context.Context, eventID, userID string, at time.Time) error {
	_, err := s.update(ctx, eventID, func(ev *model.Event) error {
		idx := ev.FindInvite(userID)
		if idx < 0 {
			return model.ErrNotFound
		}
		reminded := at
		ev.Invites[idx].ReminderSentAt = &reminded
		return nil
	})
	return err
}

// MarkAnnouncementSent records that the announcement of an announced event
// was delivered.
func (s *Service) MarkAnnouncementSent(ctx context.Context, eventID string, at time.Time) error {
	_, err := s.update(ctx, eventID, func(ev *model.Event) error {
		if !ev.Announced {
			return model.ErrNotAtCapacity
		}
		sent := at
		ev.AnnouncementSentAt = &sent
		return nil
	})
	return err
}

// CancelEvent removes the event and returns it as it was at removal time.
func (s *Service) CancelEvent(ctx context.Context, eventID string) (*model.Event, error) {
	var removed *model.Event
	err := s.mutate(ctx, func(events []*model.Event) ([]*model.Event, error) {
		idx := slices.IndexFunc(events, func(ev *model.Event) bool { return ev.ID == eventID })
		if idx < 0 {
			return nil, model.ErrNotFound
		}
		removed = events[idx]
		return slices.Delete(events, idx, idx+1), nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("event cancelled", "event_id", eventID, "group_id", removed.GroupID)
	return removed, nil
}

// update applies fn to a fresh copy of one event and writes the collection back.
// Errors from fn abort the write.
func (s *Service) update(ctx context.Context, eventID string, fn func(*model.Event) error) (*model.Event, error) {
	var updated *model.Event
	err := s.mutate(ctx, func(events []*model.Event) ([]*model.Event, error) {
		idx := slices.IndexFunc(events, func(ev *model.Event) bool { return ev.ID == eventID })
		if idx < 0 {
			return nil, model.ErrNotFound
		}
		ev := events[idx].Clone()
		if err := fn(ev); err != nil {
			return nil, err
		}
		events[idx] = ev
		updated = ev
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// mutate runs a read-modify-write cycle over the whole collection.
func (s *Service) mutate(ctx context.Context, fn func([]*model.Event) ([]*model.Event, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		snap, err := s.store.GetEvents(ctx)
		if err != nil {
			return fmt.Errorf("get events: %w", err)
		}
		next, err := fn(snap.Events)
		if err != nil {
			return err
		}
		err = s.store.SetEvents(ctx, next, snap.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt >= maxWriteAttempts {
			return fmt.Errorf("set events: %w", err)
		}
		s.logger.Warn("event collection changed concurrently, retrying", "attempt", attempt)
	}
}
