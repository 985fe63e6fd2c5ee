package directory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/me/meetup/pkg/model"
	"gopkg.in/yaml.v3"
)

// rosterFile is the on-disk YAML layout:
//
//	groups:
//	  pizza-pool: [alice, bob, deploy-bot]
//	users:
//	  deploy-bot: {display_name: Deploy Bot, is_bot: true}
type rosterFile struct {
	Groups map[string][]string          `yaml:"groups"`
	Users  map[string]model.UserProfile `yaml:"users"`
}

// Roster is a Provider backed by a YAML file. Users without a profile entry
// are treated as people whose display name is their ID.
type Roster struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	data rosterFile
}

// LoadRoster reads the roster at path.
func LoadRoster(path string, logger *slog.Logger) (*Roster, error) {
	r := &Roster{path: path, logger: logger.With("component", "roster")}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseRoster builds a Roster from YAML bytes. Reload is a no-op on it.
func ParseRoster(data []byte, logger *slog.Logger) (*Roster, error) {
	r := &Roster{logger: logger.With("component", "roster")}
	if err := r.parse(data); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the roster file.
func (r *Roster) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read roster %s: %w", r.path, err)
	}
	if err := r.parse(data); err != nil {
		return fmt.Errorf("roster %s: %w", r.path, err)
	}
	r.logger.Info("roster loaded", "path", r.path, "groups", len(r.data.Groups), "users", len(r.data.Users))
	return nil
}

func (r *Roster) parse(data []byte) error {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse roster: %w", err)
	}
	r.mu.Lock()
	r.data = f
	r.mu.Unlock()
	return nil
}

// ListGroupMembers returns the group's members in file order.
func (r *Roster) ListGroupMembers(_ context.Context, groupID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.data.Groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, model.ErrNotFound)
	}
	return slices.Clone(members), nil
}

// GetUserProfile returns the user's profile.
func (r *Roster) GetUserProfile(_ context.Context, userID string) (*model.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data.Users[userID]
	if !ok {
		return &model.UserProfile{ID: userID, DisplayName: userID}, nil
	}
	p.ID = userID
	if p.DisplayName == "" {
		p.DisplayName = userID
	}
	return &p, nil
}
