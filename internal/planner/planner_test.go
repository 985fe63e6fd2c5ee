package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/meetup/internal/directory"
	"github.com/me/meetup/internal/random"
	"github.com/me/meetup/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roster = `
groups:
  g1: [u1, u2, u3, u4, u5, u6, u7, u8]
  bots: [u1, bot1, svc1]
users:
  bot1: {is_bot: true}
  svc1: {is_service_account: true}
`

type staticOptOuts []string

func (s staticOptOuts) OptedOut(context.Context) ([]string, error) { return s, nil }

type failingOptOuts struct{}

func (failingOptOuts) OptedOut(context.Context) ([]string, error) {
	return nil, errors.New("store unavailable")
}

// fixedSelector returns a constant offset and keeps order.
type fixedSelector struct{ n int }

func (f fixedSelector) Int(bound int) int {
	if f.n >= bound {
		return bound - 1
	}
	return f.n
}

func (fixedSelector) Shuffle(ids []string) []string {
	return append([]string(nil), ids...)
}

func testPlanner(t *testing.T, optOuts OptOutSource, rnd random.Selector) *Planner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir, err := directory.ParseRoster([]byte(roster), logger)
	require.NoError(t, err)
	return New(dir, optOuts, rnd, DefaultPolicy(), logger)
}

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestNextEventTime(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		offset int
		want   time.Time
	}{
		{"wednesday", day(2030, 3, 6, 10), 0, day(2030, 3, 18, 17)},
		{"wednesday max offset", day(2030, 3, 6, 10), 3, day(2030, 3, 21, 17)},
		{"saturday", day(2030, 3, 9, 23), 0, day(2030, 3, 18, 17)},
		{"sunday", day(2030, 3, 10, 0), 0, day(2030, 3, 25, 17)},
		{"monday", day(2030, 3, 11, 17), 1, day(2030, 3, 26, 17)},
		{"month boundary", day(2030, 3, 28, 8), 2, day(2030, 4, 10, 17)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPlanner(t, staticOptOuts(nil), fixedSelector{n: tt.offset})
			got := p.NextEventTime(tt.now)
			assert.True(t, got.Equal(tt.want), "NextEventTime(%s) = %s, want %s", tt.now, got, tt.want)
		})
	}
}

func TestNextEventTime_CanonicalWindow(t *testing.T) {
	p := testPlanner(t, staticOptOuts(nil), random.NewSeeded(3))
	start := day(2030, 1, 1, 0)
	for i := range 200 {
		now := start.Add(time.Duration(i) * 7 * time.Hour)
		got := p.NextEventTime(now)

		assert.Equal(t, 17, got.Hour())
		assert.Zero(t, got.Minute())
		assert.Contains(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday}, got.Weekday())
		assert.Greater(t, got.Sub(now), 7*24*time.Hour, "at least a full week of lead time")
	}
}

func TestNextEventTime_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	policy := DefaultPolicy()
	policy.Location = loc
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(nil, staticOptOuts(nil), fixedSelector{}, policy, logger)

	// Saturday 23:00 UTC is already Sunday in UTC+2.
	got := p.NextEventTime(day(2030, 3, 9, 23))
	assert.True(t, got.Equal(time.Date(2030, 3, 25, 17, 0, 0, 0, loc)), "got %s", got)
}

func TestSelectInviteCandidates_NewEvent(t *testing.T) {
	p := testPlanner(t, staticOptOuts{"u2"}, random.NewSeeded(5))

	ids, err := p.SelectInviteCandidates(context.Background(), "g1", nil, 4)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	assert.NotContains(t, ids, "u2")
	assertUnique(t, ids)
}

func TestSelectInviteCandidates_Backfill(t *testing.T) {
	p := testPlanner(t, staticOptOuts(nil), random.NewSeeded(11))
	ev := &model.Event{ID: "evt_1", GroupID: "g1", Accepted: []string{"u1"}, Declined: []string{"u3"}}

	ids, err := p.SelectInviteCandidates(context.Background(), "g1", ev, 4)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NotContains(t, ids, "u1")
	assert.NotContains(t, ids, "u3")
	assertUnique(t, ids)
}

func TestSelectInviteCandidates_IdempotentAtCapacity(t *testing.T) {
	p := testPlanner(t, staticOptOuts(nil), random.NewSeeded(1))
	ev := model.NewEvent("evt_1", "g1", day(2030, 3, 18, 17), []string{"u1", "u2", "u3", "u4"}, day(2030, 3, 6, 0))

	for range 2 {
		ids, err := p.SelectInviteCandidates(context.Background(), "g1", ev, 4)
		require.NoError(t, err)
		assert.Empty(t, ids)
	}
}

func TestSelectInviteCandidates_FiltersNonHumans(t *testing.T) {
	p := testPlanner(t, staticOptOuts(nil), random.NewSeeded(1))

	ids, err := p.SelectInviteCandidates(context.Background(), "bots", nil, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestSelectInviteCandidates_Errors(t *testing.T) {
	p := testPlanner(t, failingOptOuts{}, random.NewSeeded(1))
	_, err := p.SelectInviteCandidates(context.Background(), "g1", nil, 4)
	assert.Error(t, err)

	p = testPlanner(t, staticOptOuts(nil), random.NewSeeded(1))
	_, err = p.SelectInviteCandidates(context.Background(), "unknown", nil, 4)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestShouldCancelForInsufficientCapacity(t *testing.T) {
	p := testPlanner(t, staticOptOuts(nil), random.NewSeeded(1))
	tests := []struct {
		accepted, invites, declined int
		want                        bool
	}{
		{0, 4, 0, false},
		{1, 3, 4, false},
		{2, 1, 5, true},
		{0, 0, 0, true},
		{4, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("a%d_i%d_d%d", tt.accepted, tt.invites, tt.declined), func(t *testing.T) {
			ev := &model.Event{}
			for i := range tt.accepted {
				ev.Accepted = append(ev.Accepted, fmt.Sprintf("a%d", i))
			}
			for i := range tt.invites {
				ev.Invites = append(ev.Invites, model.Invite{UserID: fmt.Sprintf("i%d", i)})
			}
			for i := range tt.declined {
				ev.Declined = append(ev.Declined, fmt.Sprintf("d%d", i))
			}
			assert.Equal(t, tt.want, p.ShouldCancelForInsufficientCapacity(ev, 4))
		})
	}
}

func TestShouldFailForDeadline(t *testing.T) {
	p := testPlanner(t, staticOptOuts(nil), random.NewSeeded(1))
	scheduled := day(2030, 3, 18, 17)
	open := &model.Event{ScheduledTime: scheduled, Accepted: []string{"u1"}}
	full := &model.Event{ScheduledTime: scheduled, Accepted: []string{"u1", "u2", "u3", "u4"}}
	announced := &model.Event{ScheduledTime: scheduled, Accepted: []string{"u1"}, Announced: true}

	assert.False(t, p.ShouldFailForDeadline(open, 4, scheduled.Add(-48*time.Hour)))
	assert.False(t, p.ShouldFailForDeadline(open, 4, scheduled.Add(-24*time.Hour)))
	assert.True(t, p.ShouldFailForDeadline(open, 4, scheduled.Add(-23*time.Hour)))
	assert.False(t, p.ShouldFailForDeadline(full, 4, scheduled.Add(-time.Hour)))
	assert.False(t, p.ShouldFailForDeadline(announced, 4, scheduled.Add(-time.Hour)))
}

func assertUnique(t *testing.T, ids []string) {
	t.Helper()
	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}
