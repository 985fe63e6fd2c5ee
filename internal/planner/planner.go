// Package planner decides when the next event for a group happens and who
// gets invited to it.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/meetup/internal/directory"
	"github.com/me/meetup/internal/random"
	"github.com/me/meetup/pkg/model"
)

// Policy holds the scheduling tunables.
type Policy struct {
	// LeadWeeks is how many whole weeks past the start of next week the
	// earliest candidate day lies.
	LeadWeeks int
	// Weekday is the first day of the meetup window.
	Weekday time.Weekday
	// SpreadDays is the largest random offset, in days, added to Weekday.
	SpreadDays int
	// HourOfDay is the canonical start hour of every event.
	HourOfDay int
	// Location is the time zone HourOfDay and day boundaries refer to.
	Location *time.Location
	// CancellationLead is how long before the event an unfilled event is given up.
	CancellationLead time.Duration
}

// DefaultPolicy returns a Monday-to-Thursday 17:00 UTC window at least two
// Mondays away, given up one day ahead.
func DefaultPolicy() Policy {
	return Policy{
		LeadWeeks:        1,
		Weekday:          time.Monday,
		SpreadDays:       3,
		HourOfDay:        17,
		Location:         time.UTC,
		CancellationLead: 24 * time.Hour,
	}
}

// OptOutSource lists users excluded from selection.
type OptOutSource interface {
	OptedOut(ctx context.Context) ([]string, error)
}

// Planner computes event times and invite candidates.
type Planner struct {
	directory directory.Provider
	optOuts   OptOutSource
	random    random.Selector
	policy    Policy
	logger    *slog.Logger
}

// New creates a Planner.
func New(dir directory.Provider, optOuts OptOutSource, rnd random.Selector, policy Policy, logger *slog.Logger) *Planner {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Planner{
		directory: dir,
		optOuts:   optOuts,
		random:    rnd,
		policy:    policy,
		logger:    logger.With("component", "planner"),
	}
}

// Policy returns the planner's scheduling tunables.
func (p *Planner) Policy() Policy {
	return p.policy
}

// NextEventTime returns the scheduled time for a new event created at now.
func (p *Planner) NextEventTime(now time.Time) time.Time {
	local := now.In(p.policy.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.policy.Location)

	// First Sunday strictly after today starts next week.
	nextWeek := today.AddDate(0, 0, 7-int(today.Weekday()))
	day := nextWeek.AddDate(0, 0, 7*p.policy.LeadWeeks+int(p.policy.Weekday))
	day = day.AddDate(0, 0, p.random.Int(p.policy.SpreadDays+1))

	return time.Date(day.Year(), day.Month(), day.Day(), p.policy.HourOfDay, 0, 0, 0, p.policy.Location)
}

// SelectInviteCandidates picks users to invite so that accepted plus pending
// invites reach capacity. ev may be nil for a group without an event. Users
// already involved, opted out, or not human are never picked. The result is
// empty when the event is already at capacity.
func (p *Planner) SelectInviteCandidates(ctx context.Context, groupID string, ev *model.Event, capacity int) ([]string, error) {
	committed := 0
	exclude := make(map[string]bool)
	if ev != nil {
		committed = ev.Committed()
		for _, id := range ev.InvolvedUserIDs() {
			exclude[id] = true
		}
	}
	needed := capacity - committed
	if needed <= 0 {
		return []string{}, nil
	}

	optedOut, err := p.optOuts.OptedOut(ctx)
	if err != nil {
		return nil, fmt.Errorf("opted out: %w", err)
	}
	for _, id := range optedOut {
		exclude[id] = true
	}

	members, err := p.directory.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", groupID, err)
	}

	available := make([]string, 0, len(members))
	for _, id := range members {
		if !exclude[id] {
			available = append(available, id)
		}
	}

	selected := make([]string, 0, needed)
	picked := make(map[string]bool, needed)
	for _, id := range p.random.Shuffle(available) {
		if len(selected) >= needed {
			break
		}
		if picked[id] {
			continue
		}
		profile, err := p.directory.GetUserProfile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("profile of %s: %w", id, err)
		}
		if !profile.IsHuman() {
			continue
		}
		picked[id] = true
		selected = append(selected, id)
	}

	p.logger.Debug("candidates selected", "group_id", groupID, "needed", needed,
		"available", len(available), "selected", len(selected))
	return selected, nil
}

// ShouldCancelForInsufficientCapacity reports whether the event can no longer
// reach capacity even if every pending invite is accepted.
func (p *Planner) ShouldCancelForInsufficientCapacity(ev *model.Event, capacity int) bool {
	return ev.Committed() < capacity
}

// ShouldFailForDeadline reports whether an unfilled event is too close to its
// scheduled time to keep waiting.
func (p *Planner) ShouldFailForDeadline(ev *model.Event, capacity int, now time.Time) bool {
	if ev.Announced || len(ev.Accepted) >= capacity {
		return false
	}
	return now.After(ev.ScheduledTime.Add(-p.policy.CancellationLead))
}
