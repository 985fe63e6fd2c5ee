package model

import "time"

// EventState is the lifecycle state of an Event, derived from its fields and
// the current time. A cancelled event has no state; it is removed.
type EventState string

const (
	EventStateOpen      EventState = "OPEN"
	EventStateAnnounced EventState = "ANNOUNCED"
	EventStatePast      EventState = "PAST"
)

// String returns the string representation of the event state.
func (s EventState) String() string {
	return string(s)
}

// IsTerminal returns true if no user action can change the event any more.
func (s EventState) IsTerminal() bool {
	switch s {
	case EventStateAnnounced, EventStatePast:
		return true
	}
	return false
}

// ValidEventTransitions defines the allowed state transitions for Events.
var ValidEventTransitions = map[EventState][]EventState{
	EventStateOpen:      {EventStateAnnounced, EventStatePast},
	EventStateAnnounced: {EventStatePast},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s EventState) CanTransitionTo(next EventState) bool {
	for _, allowed := range ValidEventTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// State returns the event's lifecycle state at now.
func (e *Event) State(now time.Time) EventState {
	switch {
	case !e.IsActive(now):
		return EventStatePast
	case e.Announced:
		return EventStateAnnounced
	default:
		return EventStateOpen
	}
}
