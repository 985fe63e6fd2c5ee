package notify

import (
	"context"
	"log/slog"

	"github.com/me/meetup/pkg/model"
)

// LogSink writes notifications to a structured logger instead of sending them.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "notify")}
}

// Deliver logs n at info level.
func (s *LogSink) Deliver(ctx context.Context, n *model.Notification) error {
	attrs := []any{
		"kind", n.Kind,
		"recipients", n.Recipients,
	}
	if n.GroupID != "" {
		attrs = append(attrs, "group_id", n.GroupID)
	}
	if n.Channel != "" {
		attrs = append(attrs, "channel", n.Channel)
	}
	if n.EventID != "" {
		attrs = append(attrs, "event_id", n.EventID)
	}
	if n.ScheduledTime != nil {
		attrs = append(attrs, "scheduled_time", *n.ScheduledTime)
	}
	if n.CorrelationToken != "" {
		attrs = append(attrs, "token", n.CorrelationToken)
	}
	if n.ReservationUser != "" {
		attrs = append(attrs, "reservation_user", n.ReservationUser, "expense_user", n.ExpenseUser)
	}
	if n.Home != nil {
		attrs = append(attrs, "invited", len(n.Home.Invited), "accepted", len(n.Home.Accepted),
			"declined", len(n.Home.Declined), "opted_out", n.Home.OptedOut)
	}
	s.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
