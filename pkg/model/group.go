package model

// Group is a membership pool that gets one recurring meetup at a time.
type Group struct {
	ID                  string `json:"id" yaml:"id" validate:"required"`
	Name                string `json:"name" yaml:"name"`
	AnnouncementChannel string `json:"announcement_channel,omitempty" yaml:"announcement_channel"`
}

// UserProfile is the directory data the planner needs about a member.
type UserProfile struct {
	ID               string `json:"id" yaml:"id"`
	DisplayName      string `json:"display_name" yaml:"display_name"`
	Email            string `json:"email,omitempty" yaml:"email"`
	IsBot            bool   `json:"is_bot" yaml:"is_bot"`
	IsServiceAccount bool   `json:"is_service_account" yaml:"is_service_account"`
}

// IsHuman reports whether the profile belongs to a person that can be invited.
func (p *UserProfile) IsHuman() bool {
	return !p.IsBot && !p.IsServiceAccount
}
