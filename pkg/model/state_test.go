package model

import (
	"testing"
	"time"
)

func TestEventState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    EventState
		terminal bool
	}{
		{EventStateOpen, false},
		{EventStateAnnounced, true},
		{EventStatePast, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("EventState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestEventState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  EventState
		to    EventState
		valid bool
	}{
		// Valid transitions
		{EventStateOpen, EventStateAnnounced, true},
		{EventStateOpen, EventStatePast, true},
		{EventStateAnnounced, EventStatePast, true},

		// Invalid transitions
		{EventStateAnnounced, EventStateOpen, false},
		{EventStatePast, EventStateOpen, false},
		{EventStatePast, EventStateAnnounced, false},
		{EventStateOpen, EventStateOpen, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("EventState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestEvent_State(t *testing.T) {
	ev := newTestEvent("u1", "u2")
	if got := ev.State(testNow); got != EventStateOpen {
		t.Errorf("new event: State = %s, want OPEN", got)
	}

	ev.Accept("u1")
	ev.Finalize("u1", "u1")
	if got := ev.State(testNow); got != EventStateAnnounced {
		t.Errorf("finalized: State = %s, want ANNOUNCED", got)
	}

	later := ev.ScheduledTime.Add(time.Minute)
	if got := ev.State(later); got != EventStatePast {
		t.Errorf("after start: State = %s, want PAST", got)
	}
}
