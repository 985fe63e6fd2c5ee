package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/meetup/internal/clock"
	"github.com/me/meetup/internal/events"
	"github.com/me/meetup/internal/notify"
	"github.com/me/meetup/internal/planner"
	"github.com/me/meetup/pkg/model"
)

// ActiveHours is the [Start, End) hour-of-day window in which invites and
// reminders go out.
type ActiveHours struct {
	Start int
	End   int
}

// Contains reports whether t falls inside the window in loc.
func (h ActiveHours) Contains(t time.Time, loc *time.Location) bool {
	hour := t.In(loc).Hour()
	return hour >= h.Start && hour < h.End
}

// Config holds scheduler configuration.
type Config struct {
	TickInterval     time.Duration
	ExpiryGrace      time.Duration
	ReminderCooldown time.Duration
	ActiveHours      ActiveHours
	Location         *time.Location
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:     5 * time.Minute,
		ExpiryGrace:      72 * time.Hour,
		ReminderCooldown: 24 * time.Hour,
		ActiveHours:      ActiveHours{Start: 9, End: 17},
		Location:         time.UTC,
	}
}

// Loop implements the Scheduler interface with a ticker-driven phase sequence.
type Loop struct {
	events   *events.Service
	planner  *planner.Planner
	notifier notify.Notifier
	clock    clock.Clock
	groups   []model.Group
	config   Config
	logger   *slog.Logger

	// tickMu serializes timer ticks and manual ticks.
	tickMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop creates a new scheduler loop over the configured groups.
func NewLoop(svc *events.Service, pl *planner.Planner, n notify.Notifier, clk clock.Clock,
	groups []model.Group, cfg Config, logger *slog.Logger) *Loop {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Loop{
		events:   svc,
		planner:  pl,
		notifier: n,
		clock:    clk,
		groups:   groups,
		config:   cfg,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start begins the scheduling loop. Blocks until ctx is cancelled or Stop is
// called. Calling Start on a running loop returns nil immediately.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		l.logger.Debug("scheduler already running")
		return nil
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	l.running, l.stopCh, l.doneCh = true, stopCh, doneCh
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running, l.stopCh = false, nil
		l.mu.Unlock()
		close(doneCh)
	}()

	l.logger.Info("scheduler started", "tick_interval", l.config.TickInterval, "groups", len(l.groups))
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop shuts down the scheduler and waits for the current tick to finish.
// It is a no-op when the loop is not running.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	if l.stopCh != nil {
		close(l.stopCh)
		l.stopCh = nil
	}
	doneCh := l.doneCh
	l.mu.Unlock()

	<-doneCh
	return nil
}

// Running reports whether Start is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Tick runs a single scheduling iteration. Concurrent calls run one after
// another. The first failing phase aborts the tick; the next tick re-reads
// all state and resumes. Directory lookups that fail for one group are logged
// and skip only that group.
func (l *Loop) Tick(ctx context.Context) error {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	start := l.clock.Now()

	// Phase 1: Finalize and announce events that reached capacity.
	if err := l.announceFull(ctx); err != nil {
		return fmt.Errorf("phase 1 (announce): %w", err)
	}

	// Phase 2: Cancel unfilled events too close to their scheduled time.
	if err := l.removeFailed(ctx); err != nil {
		return fmt.Errorf("phase 2 (deadline): %w", err)
	}

	// Phase 3: Create an event for every group without an active one.
	if err := l.planNew(ctx); err != nil {
		return fmt.Errorf("phase 3 (plan): %w", err)
	}

	// Phase 4: Auto-decline invites left unanswered past the grace period.
	if err := l.expireStale(ctx); err != nil {
		return fmt.Errorf("phase 4 (expire): %w", err)
	}

	// Phase 5: Top up open events toward capacity.
	if err := l.backfill(ctx); err != nil {
		return fmt.Errorf("phase 5 (backfill): %w", err)
	}

	// Phase 6: Deliver pending invites and due reminders.
	if err := l.sendInvites(ctx); err != nil {
		return fmt.Errorf("phase 6 (invites): %w", err)
	}

	// Phase 7: Cancel events whose pending pool can no longer reach capacity.
	if err := l.cancelUnderSubscribed(ctx); err != nil {
		return fmt.Errorf("phase 7 (under-subscribed): %w", err)
	}

	l.logger.Debug("tick complete", "duration", l.clock.Now().Sub(start))
	return nil
}

// announceFull finalizes open events whose accepted list reached capacity and
// delivers every announcement still owed. An announcement is marked sent only
// after delivery, so a failed one is retried on the next tick.
func (l *Loop) announceFull(ctx context.Context) error {
	active, err := l.events.ListActiveEvents(ctx)
	if err != nil {
		return err
	}
	capacity := l.events.Capacity()

	for _, ev := range active {
		if !ev.Announced {
			if len(ev.Accepted) < capacity {
				continue
			}
			finalized, err := l.events.FinalizeEvent(ctx, ev.ID)
			if isStale(err) {
				l.logger.Debug("skip finalize (state changed)", "event_id", ev.ID, "error", err)
				continue
			}
			if err != nil {
				return err
			}
			ev = finalized
		}
		if ev.AnnouncementSentAt != nil {
			continue
		}

		if err := l.notifier.SendAnnouncement(ctx, ev); err != nil {
			return err
		}
		for _, userID := range ev.Accepted {
			if err := l.refreshHome(ctx, userID); err != nil {
				return err
			}
		}
		if err := l.events.MarkAnnouncementSent(ctx, ev.ID, l.clock.Now()); err != nil && !isStale(err) {
			return err
		}
	}
	return nil
}

// removeFailed cancels unannounced events past their cancellation deadline,
// including ones whose scheduled time has already gone by.
func (l *Loop) removeFailed(ctx context.Context) error {
	all, err := l.events.ListEvents(ctx, true)
	if err != nil {
		return err
	}
	now := l.clock.Now()
	capacity := l.events.Capacity()

	for _, ev := range all {
		if l.planner.ShouldFailForDeadline(ev, capacity, now) {
			if err := l.cancel(ctx, ev, "deadline"); err != nil {
				return err
			}
		}
	}
	return nil
}

// planNew creates an event for each configured group lacking an active one.
// Creation is deferred while the group cannot fill a whole event.
func (l *Loop) planNew(ctx context.Context) error {
	active, err := l.events.ListActiveEvents(ctx)
	if err != nil {
		return err
	}
	planned := make(map[string]bool, len(active))
	for _, ev := range active {
		planned[ev.GroupID] = true
	}
	capacity := l.events.Capacity()

	for _, g := range l.groups {
		if planned[g.ID] {
			continue
		}
		at := l.planner.NextEventTime(l.clock.Now())
		candidates, err := l.planner.SelectInviteCandidates(ctx, g.ID, nil, capacity)
		if err != nil {
			l.logger.Error("select candidates failed, skipping group", "group_id", g.ID, "error", err)
			continue
		}
		if len(candidates) < capacity {
			l.logger.Warn("not enough eligible members, deferring event",
				"group_id", g.ID, "candidates", len(candidates), "capacity", capacity)
			continue
		}
		if _, err := l.events.CreateEvent(ctx, g.ID, at, candidates); err != nil {
			return err
		}
	}
	return nil
}

// expireStale declines sent invites that stayed unanswered past the grace period.
func (l *Loop) expireStale(ctx context.Context) error {
	active, err := l.events.ListActiveEvents(ctx)
	if err != nil {
		return err
	}
	now := l.clock.Now()

	for _, ev := range active {
		if ev.Announced {
			continue
		}
		for _, inv := range ev.Invites {
			if inv.InviteSentAt == nil || inv.ReminderSentAt == nil {
				continue
			}
			if !now.After(inv.InviteSentAt.Add(l.config.ExpiryGrace)) {
				continue
			}
			updated, err := l.events.ExpireInvitation(ctx, inv.UserID, ev.ID)
			if isStale(err) {
				continue
			}
			if err != nil {
				return err
			}
			if err := l.notifier.SendExpired(ctx, inv.UserID, updated, inv.CorrelationToken); err != nil {
				return err
			}
			if err := l.refreshHome(ctx, inv.UserID); err != nil {
				return err
			}
		}
	}
	return nil
}

// backfill invites new candidates to open events below capacity. A duplicate
// involvement aborts only that event's batch.
func (l *Loop) backfill(ctx context.Context) error {
	active, err := l.events.ListActiveEvents(ctx)
	if err != nil {
		return err
	}
	capacity := l.events.Capacity()

	for _, ev := range active {
		if ev.Announced || ev.Committed() >= capacity {
			continue
		}
		candidates, err := l.planner.SelectInviteCandidates(ctx, ev.GroupID, ev, capacity)
		if err != nil {
			l.logger.Error("select candidates failed, skipping backfill",
				"event_id", ev.ID, "group_id", ev.GroupID, "error", err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}
		_, err = l.events.InviteUsers(ctx, ev.ID, candidates)
		switch {
		case errors.Is(err, model.ErrDuplicateInvolvement):
			l.logger.Error("backfill rejected", "event_id", ev.ID, "error", err)
		case isStale(err):
			l.logger.Debug("skip backfill (state changed)", "event_id", ev.ID, "error", err)
		case err != nil:
			return err
		}
	}
	return nil
}

// sendInvites delivers unsent invites and reminders that are due. Nothing is
// sent outside active hours.
func (l *Loop) sendInvites(ctx context.Context) error {
	now := l.clock.Now()
	if !l.config.ActiveHours.Contains(now, l.config.Location) {
		l.logger.Debug("outside active hours, holding invites", "now", now)
		return nil
	}

	active, err := l.events.ListActiveEvents(ctx)
	if err != nil {
		return err
	}

	for _, ev := range active {
		if ev.Announced {
			continue
		}
		for _, inv := range ev.Invites {
			switch {
			case !inv.Sent():
				token, err := l.notifier.SendInvite(ctx, inv.UserID, ev.GroupID, ev.ScheduledTime, ev.ID, inv.CorrelationToken)
				if err != nil {
					return err
				}
				if err := l.events.MarkInviteSent(ctx, ev.ID, inv.UserID, now, token); err != nil && !isStale(err) {
					return err
				}
			case inv.ReminderSentAt != nil && now.Sub(*inv.ReminderSentAt) > l.config.ReminderCooldown:
				if err := l.notifier.SendReminder(ctx, inv.UserID, ev.GroupID, ev.ScheduledTime, ev.ID, inv.CorrelationToken); err != nil {
					return err
				}
				if err := l.events.MarkReminderSent(ctx, ev.ID, inv.UserID, now); err != nil && !isStale(err) {
					return err
				}
			}
		}
	}
	return nil
}

// cancelUnderSubscribed cancels open events that cannot reach capacity even
// if every pending invite is accepted.
func (l *Loop) cancelUnderSubscribed(ctx context.Context) error {
	active, err := l.events.ListActiveEvents(ctx)
	if err != nil {
		return err
	}
	capacity := l.events.Capacity()

	for _, ev := range active {
		if ev.Announced || !l.planner.ShouldCancelForInsufficientCapacity(ev, capacity) {
			continue
		}
		if err := l.cancel(ctx, ev, "insufficient capacity"); err != nil {
			return err
		}
	}
	return nil
}

// cancel notifies everyone still pending or accepted, then removes the event.
// If delivery fails the event stays stored and the next tick tries again.
func (l *Loop) cancel(ctx context.Context, ev *model.Event, reason string) error {
	recipients := append(ev.PendingUserIDs(), ev.Accepted...)
	if err := l.notifier.SendCancellation(ctx, ev, recipients); err != nil {
		return err
	}

	removed, err := l.events.CancelEvent(ctx, ev.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	l.logger.Info("event cancelled", "event_id", removed.ID, "group_id", removed.GroupID,
		"reason", reason, "notified", len(recipients))

	// The record is gone, so a failed refresh cannot be retried by a later tick.
	for _, userID := range recipients {
		if err := l.refreshHome(ctx, userID); err != nil {
			l.logger.Warn("refresh home view after cancel", "user_id", userID, "error", err)
		}
	}
	return nil
}

// refreshHome publishes the user's current home view.
func (l *Loop) refreshHome(ctx context.Context, userID string) error {
	evs, err := l.events.ListEventsForUser(ctx, userID)
	if err != nil {
		return err
	}
	optedOut, err := l.events.IsOptedOut(ctx, userID)
	if err != nil {
		return err
	}
	return l.notifier.RefreshHome(ctx, userID, model.NewHomeView(userID, optedOut, evs))
}

// isStale reports errors meaning the event moved on since it was listed.
func isStale(err error) bool {
	return errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrAnnounced) ||
		errors.Is(err, model.ErrNotAtCapacity)
}
