package notify

import (
	"context"
	"time"

	"github.com/me/meetup/internal/ratelimit"
	"github.com/me/meetup/pkg/model"
)

// RateLimited throttles a Notifier per recipient. Announcements are keyed by
// group so a busy channel is not flooded either.
type RateLimited struct {
	next    Notifier
	limiter *ratelimit.KeyedRateLimiter
}

// NewRateLimited wraps next with the given limiter.
func NewRateLimited(next Notifier, limiter *ratelimit.KeyedRateLimiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

func (r *RateLimited) SendInvite(ctx context.Context, userID, groupID string, at time.Time, eventID, token string) (string, error) {
	if err := r.limiter.Wait(ctx, userID); err != nil {
		return "", err
	}
	return r.next.SendInvite(ctx, userID, groupID, at, eventID, token)
}

func (r *RateLimited) SendReminder(ctx context.Context, userID, groupID string, at time.Time, eventID, token string) error {
	if err := r.limiter.Wait(ctx, userID); err != nil {
		return err
	}
	return r.next.SendReminder(ctx, userID, groupID, at, eventID, token)
}

func (r *RateLimited) SendAnnouncement(ctx context.Context, ev *model.Event) error {
	if err := r.limiter.Wait(ctx, "group:"+ev.GroupID); err != nil {
		return err
	}
	return r.next.SendAnnouncement(ctx, ev)
}

func (r *RateLimited) SendCancellation(ctx context.Context, ev *model.Event, userIDs []string) error {
	if err := r.limiter.Wait(ctx, "group:"+ev.GroupID); err != nil {
		return err
	}
	return r.next.SendCancellation(ctx, ev, userIDs)
}

func (r *RateLimited) SendExpired(ctx context.Context, userID string, ev *model.Event, token string) error {
	if err := r.limiter.Wait(ctx, userID); err != nil {
		return err
	}
	return r.next.SendExpired(ctx, userID, ev, token)
}

func (r *RateLimited) RefreshHome(ctx context.Context, userID string, view *model.HomeView) error {
	if err := r.limiter.Wait(ctx, "home:"+userID); err != nil {
		return err
	}
	return r.next.RefreshHome(ctx, userID, view)
}
