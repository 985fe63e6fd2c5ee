// Package notify turns event lifecycle changes into outbound notifications.
//
// A Messenger composes model.Notification values and hands them to a Sink:
// LogSink for development, AMQPSink for RabbitMQ, or Recorder in tests.
// RateLimited wraps any Notifier with per-recipient throttling.
package notify

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/me/meetup/internal/clock"
	"github.com/me/meetup/pkg/model"
)

// Notifier delivers the messages the scheduler emits.
type Notifier interface {
	// SendInvite delivers a first invitation and returns the correlation
	// token to store with the invite. An empty token requests a new one.
	SendInvite(ctx context.Context, userID, groupID string, at time.Time, eventID, token string) (string, error)
	SendReminder(ctx context.Context, userID, groupID string, at time.Time, eventID, token string) error
	SendAnnouncement(ctx context.Context, ev *model.Event) error
	SendCancellation(ctx context.Context, ev *model.Event, userIDs []string) error
	SendExpired(ctx context.Context, userID string, ev *model.Event, token string) error
	RefreshHome(ctx context.Context, userID string, view *model.HomeView) error
}

// Sink transports a composed notification.
type Sink interface {
	Deliver(ctx context.Context, n *model.Notification) error
}

// Messenger implements Notifier on top of a Sink.
type Messenger struct {
	sink     Sink
	channels map[string]string
	clock    clock.Clock
	newToken func() (string, error)
}

// NewMessenger creates a Messenger. Announcements and cancellations for a
// group are addressed to the group's announcement channel.
func NewMessenger(sink Sink, groups []model.Group, clk clock.Clock) *Messenger {
	channels := make(map[string]string, len(groups))
	for _, g := range groups {
		channels[g.ID] = g.AnnouncementChannel
	}
	return &Messenger{
		sink:     sink,
		channels: channels,
		clock:    clk,
		newToken: func() (string, error) { return gonanoid.New() },
	}
}

func (m *Messenger) SendInvite(ctx context.Context, userID, groupID string, at time.Time, eventID, token string) (string, error) {
	if token == "" {
		var err error
		if token, err = m.newToken(); err != nil {
			return "", fmt.Errorf("generate correlation token: %w", err)
		}
	}
	n := m.compose(model.NotificationInvite, []string{userID}, groupID)
	n.EventID = eventID
	n.ScheduledTime = &at
	n.CorrelationToken = token
	if err := m.sink.Deliver(ctx, n); err != nil {
		return "", fmt.Errorf("deliver invite to %s: %w", userID, err)
	}
	return token, nil
}

func (m *Messenger) SendReminder(ctx context.Context, userID, groupID string, at time.Time, eventID, token string) error {
	n := m.compose(model.NotificationReminder, []string{userID}, groupID)
	n.EventID = eventID
	n.ScheduledTime = &at
	n.CorrelationToken = token
	if err := m.sink.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver reminder to %s: %w", userID, err)
	}
	return nil
}

func (m *Messenger) SendAnnouncement(ctx context.Context, ev *model.Event) error {
	n := m.compose(model.NotificationAnnouncement, ev.Accepted, ev.GroupID)
	m.describe(n, ev)
	n.Participants = append([]string(nil), ev.Accepted...)
	n.ReservationUser = ev.ReservationUser
	n.ExpenseUser = ev.ExpenseUser
	if err := m.sink.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver announcement for %s: %w", ev.ID, err)
	}
	return nil
}

func (m *Messenger) SendCancellation(ctx context.Context, ev *model.Event, userIDs []string) error {
	n := m.compose(model.NotificationCancellation, userIDs, ev.GroupID)
	m.describe(n, ev)
	if err := m.sink.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver cancellation for %s: %w", ev.ID, err)
	}
	return nil
}

func (m *Messenger) SendExpired(ctx context.Context, userID string, ev *model.Event, token string) error {
	n := m.compose(model.NotificationExpired, []string{userID}, ev.GroupID)
	m.describe(n, ev)
	n.CorrelationToken = token
	if err := m.sink.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver expiry to %s: %w", userID, err)
	}
	return nil
}

func (m *Messenger) RefreshHome(ctx context.Context, userID string, view *model.HomeView) error {
	n := m.compose(model.NotificationHome, []string{userID}, "")
	n.Home = view
	if err := m.sink.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver home view to %s: %w", userID, err)
	}
	return nil
}

func (m *Messenger) compose(kind model.NotificationKind, recipients []string, groupID string) *model.Notification {
	return &model.Notification{
		Kind:       kind,
		Recipients: append([]string{}, recipients...),
		GroupID:    groupID,
		Channel:    m.channels[groupID],
		CreatedAt:  m.clock.Now(),
	}
}

func (m *Messenger) describe(n *model.Notification, ev *model.Event) {
	at := ev.ScheduledTime
	n.EventID = ev.ID
	n.ScheduledTime = &at
}
