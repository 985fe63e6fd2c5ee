package model

import (
	"testing"
	"time"
)

func TestHomeView_PartitionsByInvolvement(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	invited := NewEvent("evt_a", "g1", now.Add(48*time.Hour), []string{"u1"}, now)
	accepted := NewEvent("evt_b", "g1", now.Add(72*time.Hour), []string{"u1"}, now)
	if err := accepted.Accept("u1"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	declined := NewEvent("evt_c", "g2", now.Add(96*time.Hour), []string{"u1"}, now)
	if err := declined.Decline("u1"); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	other := NewEvent("evt_d", "g2", now.Add(96*time.Hour), []string{"u2"}, now)

	v := NewHomeView("u1", true, []*Event{invited, accepted, declined, other})
	if !v.OptedOut {
		t.Error("OptedOut = false, want true")
	}
	if len(v.Invited) != 1 || v.Invited[0].ID != "evt_a" {
		t.Errorf("Invited = %v, want [evt_a]", v.Invited)
	}
	if len(v.Accepted) != 1 || v.Accepted[0].ID != "evt_b" {
		t.Errorf("Accepted = %v, want [evt_b]", v.Accepted)
	}
	if len(v.Declined) != 1 || v.Declined[0].ID != "evt_c" {
		t.Errorf("Declined = %v, want [evt_c]", v.Declined)
	}
}

func TestUserProfile_IsHuman(t *testing.T) {
	tests := []struct {
		name string
		p    UserProfile
		want bool
	}{
		{"person", UserProfile{ID: "u1"}, true},
		{"bot", UserProfile{ID: "b1", IsBot: true}, false},
		{"service account", UserProfile{ID: "s1", IsServiceAccount: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.IsHuman(); got != tt.want {
				t.Errorf("IsHuman() = %v, want %v", got, tt.want)
			}
		})
	}
}
