package directory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/me/meetup/pkg/model"
)

// Cached wraps a Provider with an in-memory TTL cache for member lists and
// profiles. Callers only see the Provider methods.
type Cached struct {
	next     Provider
	ttl      time.Duration
	members  *ristretto.Cache[string, []string]
	profiles *ristretto.Cache[string, *model.UserProfile]
	logger   *slog.Logger
}

// NewCached returns a caching Provider. Call Close to release the caches.
func NewCached(next Provider, ttl time.Duration, logger *slog.Logger) (*Cached, error) {
	members, err := ristretto.NewCache(&ristretto.Config[string, []string]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("member cache: %w", err)
	}
	profiles, err := ristretto.NewCache(&ristretto.Config[string, *model.UserProfile]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		members.Close()
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	return &Cached{
		next:     next,
		ttl:      ttl,
		members:  members,
		profiles: profiles,
		logger:   logger.With("component", "directory_cache"),
	}, nil
}

// ListGroupMembers returns cached members, loading them on a miss.
func (c *Cached) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if ids, ok := c.members.Get(groupID); ok {
		return slices.Clone(ids), nil
	}
	ids, err := c.next.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	c.members.SetWithTTL(groupID, slices.Clone(ids), 1, c.ttl)
	c.members.Wait()
	c.logger.Debug("members cached", "group_id", groupID, "count", len(ids))
	return ids, nil
}

// GetUserProfile returns a cached profile, loading it on a miss.
func (c *Cached) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	if p, ok := c.profiles.Get(userID); ok {
		cp := *p
		return &cp, nil
	}
	p, err := c.next.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	cp := *p
	c.profiles.SetWithTTL(userID, &cp, 1, c.ttl)
	c.profiles.Wait()
	return p, nil
}

// Invalidate drops every cached entry.
func (c *Cached) Invalidate() {
	c.members.Clear()
	c.profiles.Clear()
}

// Close stops the cache goroutines.
func (c *Cached) Close() {
	c.members.Close()
	c.profiles.Close()
}
