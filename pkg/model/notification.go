package model

import "time"

// NotificationKind identifies the purpose of an outbound notification.
type NotificationKind string

const (
	NotificationInvite       NotificationKind = "invite"
	NotificationReminder     NotificationKind = "reminder"
	NotificationAnnouncement NotificationKind = "announcement"
	NotificationCancellation NotificationKind = "cancellation"
	NotificationExpired      NotificationKind = "expired"
	NotificationHome         NotificationKind = "home"
)

// Notification is the message handed to the delivery layer. Renderers use
// Kind to pick a template and the remaining fields to fill it.
type Notification struct {
	Kind             NotificationKind `json:"kind"`
	Recipients       []string         `json:"recipients"`
	GroupID          string           `json:"group_id,omitempty"`
	Channel          string           `json:"channel,omitempty"`
	EventID          string           `json:"event_id,omitempty"`
	ScheduledTime    *time.Time       `json:"scheduled_time,omitempty"`
	CorrelationToken string           `json:"correlation_token,omitempty"`
	Participants     []string         `json:"participants,omitempty"`
	ReservationUser  string           `json:"reservation_user,omitempty"`
	ExpenseUser      string           `json:"expense_user,omitempty"`
	Home             *HomeView        `json:"home,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// HomeView summarizes a user's involvement across active events.
type HomeView struct {
	UserID   string   `json:"user_id"`
	OptedOut bool     `json:"opted_out"`
	Invited  []*Event `json:"invited"`
	Accepted []*Event `json:"accepted"`
	Declined []*Event `json:"declined"`
}

// NewHomeView partitions events by the user's involvement.
func NewHomeView(userID string, optedOut bool, events []*Event) *HomeView {
	v := &HomeView{
		UserID:   userID,
		OptedOut: optedOut,
		Invited:  []*Event{},
		Accepted: []*Event{},
		Declined: []*Event{},
	}
	for _, ev := range events {
		switch {
		case ev.IsInvited(userID):
			v.Invited = append(v.Invited, ev)
		case ev.HasAccepted(userID):
			v.Accepted = append(v.Accepted, ev)
		case ev.HasDeclined(userID):
			v.Declined = append(v.Declined, ev)
		}
	}
	return v
}
