package model

import (
	"slices"
	"time"
)

// Invite is a single user's outstanding invitation to one event.
type Invite struct {
	UserID         string     `json:"user_id"`
	InviteSentAt   *time.Time `json:"invite_sent_at,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`

	// CorrelationToken is the opaque handle the notifier returned for the
	// invite message, used to thread reminders and follow-ups.
	CorrelationToken string `json:"correlation_token,omitempty"`
}

// Sent reports whether the invite message has been delivered at least once.
func (i Invite) Sent() bool {
	return i.InviteSentAt != nil
}

// Event is one scheduled group meetup and its participant state.
type Event struct {
	ID            string    `json:"id"`
	GroupID       string    `json:"group_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Invites       []Invite  `json:"invites"`
	Accepted      []string  `json:"accepted"`
	Declined      []string  `json:"declined"`
	Announced     bool      `json:"announced"`

	ReservationUser string `json:"reservation_user,omitempty"`
	ExpenseUser     string `json:"expense_user,omitempty"`

	// AnnouncementSentAt is set once the announcement was delivered. An
	// announced event without it still owes its announcement.
	AnnouncementSentAt *time.Time `json:"announcement_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewEvent returns an open event with one pending invite per user.
func NewEvent(id, groupID string, scheduled time.Time, userIDs []string, now time.Time) *Event {
	ev := &Event{
		ID:            id,
		GroupID:       groupID,
		ScheduledTime: scheduled,
		Invites:       []Invite{},
		Accepted:      []string{},
		Declined:      []string{},
		CreatedAt:     now,
	}
	for _, u := range userIDs {
		if ev.IsInvolved(u) {
			continue
		}
		ev.Invites = append(ev.Invites, Invite{UserID: u})
	}
	return ev
}

// IsActive reports whether the event is still in the future relative to now.
func (e *Event) IsActive(now time.Time) bool {
	return e.ScheduledTime.After(now)
}

// IsInvited reports whether the user has a pending invite.
func (e *Event) IsInvited(userID string) bool {
	return e.FindInvite(userID) >= 0
}

// HasAccepted reports whether the user accepted.
func (e *Event) HasAccepted(userID string) bool {
	return slices.Contains(e.Accepted, userID)
}

// HasDeclined reports whether the user declined or let the invite expire.
func (e *Event) HasDeclined(userID string) bool {
	return slices.Contains(e.Declined, userID)
}

// IsInvolved reports whether the user is invited, accepted, or declined.
func (e *Event) IsInvolved(userID string) bool {
	return e.IsInvited(userID) || e.HasAccepted(userID) || e.HasDeclined(userID)
}

// FindInvite returns the index of the user's pending invite, or -1.
func (e *Event) FindInvite(userID string) int {
	return slices.IndexFunc(e.Invites, func(inv Invite) bool { return inv.UserID == userID })
}

// PendingUserIDs returns the users with unresolved invites, in invite order.
func (e *Event) PendingUserIDs() []string {
	ids := make([]string, 0, len(e.Invites))
	for _, inv := range e.Invites {
		ids = append(ids, inv.UserID)
	}
	return ids
}

// InvolvedUserIDs returns pending, accepted, and declined users.
func (e *Event) InvolvedUserIDs() []string {
	ids := e.PendingUserIDs()
	ids = append(ids, e.Accepted...)
	return append(ids, e.Declined...)
}

// Committed is the number of seats that are taken or could still be taken:
// accepted users plus pending invites.
func (e *Event) Committed() int {
	return len(e.Accepted) + len(e.Invites)
}

// Invite appends pending invites for userIDs. It rejects the whole batch if any
// user is already involved, or listed twice.
func (e *Event) Invite(userIDs []string) error {
	if e.Announced {
		return ErrAnnounced
	}
	seen := make(map[string]bool, len(userIDs))
	for _, u := range userIDs {
		if seen[u] || e.IsInvolved(u) {
			return &DuplicateInvolvementError{EventID: e.ID, UserID: u}
		}
		seen[u] = true
	}
	for _, u := range userIDs {
		e.Invites = append(e.Invites, Invite{UserID: u})
	}
	return nil
}

// Accept moves the user's pending invite to Accepted.
func (e *Event) Accept(userID string) error {
	return e.resolve(userID, true)
}

// Decline moves the user's pending invite to Declined.
func (e *Event) Decline(userID string) error {
	return e.resolve(userID, false)
}

func (e *Event) resolve(userID string, accept bool) error {
	if e.Announced {
		return ErrAnnounced
	}
	idx := e.FindInvite(userID)
	if idx < 0 {
		return ErrNotFound
	}
	e.Invites = slices.Delete(e.Invites, idx, idx+1)
	if accept {
		e.Accepted = append(e.Accepted, userID)
	} else {
		e.Declined = append(e.Declined, userID)
	}
	return nil
}

// Finalize assigns the designated roles and marks the event announced.
func (e *Event) Finalize(reservationUser, expenseUser string) {
	e.ReservationUser = reservationUser
	e.ExpenseUser = expenseUser
	e.Announced = true
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	c.Invites = make([]Invite, len(e.Invites))
	for i, inv := range e.Invites {
		c.Invites[i] = Invite{
			UserID:           inv.UserID,
			InviteSentAt:     cloneTime(inv.InviteSentAt),
			ReminderSentAt:   cloneTime(inv.ReminderSentAt),
			CorrelationToken: inv.CorrelationToken,
		}
	}
	c.AnnouncementSentAt = cloneTime(e.AnnouncementSentAt)
	c.Accepted = slices.Clone(e.Accepted)
	c.Declined = slices.Clone(e.Declined)
	if c.Accepted == nil {
		c.Accepted = []string{}
	}
	if c.Declined == nil {
		c.Declined = []string{}
	}
	return &c
}

// SortEvents orders events by scheduled time, then ID, ascending.
func SortEvents(events []*Event) {
	slices.SortFunc(events, func(a, b *Event) int {
		if c := a.ScheduledTime.Compare(b.ScheduledTime); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
