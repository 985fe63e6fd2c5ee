// Package directory provides group membership and user profiles to the planner.
package directory

import (
	"context"

	"github.com/me/meetup/pkg/model"
)

// Provider answers membership and profile queries.
type Provider interface {
	// ListGroupMembers returns the user IDs that belong to the group.
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)

	// GetUserProfile returns profile data for one user.
	GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error)
}
