package events

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/me/meetup/internal/store"
)

// OptedOut returns the users excluded from candidate selection.
func (s *Service) OptedOut(ctx context.Context) ([]string, error) {
	set, err := s.store.GetOptedOut(ctx)
	if err != nil {
		return nil, fmt.Errorf("get opted out: %w", err)
	}
	return set.UserIDs, nil
}

// IsOptedOut reports whether the user is excluded from candidate selection.
func (s *Service) IsOptedOut(ctx context.Context, userID string) (bool, error) {
	ids, err := s.OptedOut(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, userID), nil
}

// OptOut excludes the user from future candidate selection. Events the user is
// already involved in are left as they are. It reports whether the set changed.
func (s *Service) OptOut(ctx context.Context, userID string) (bool, error) {
	changed, err := s.mutateOptOuts(ctx, func(ids []string) ([]string, bool) {
		if slices.Contains(ids, userID) {
			return ids, false
		}
		return append(ids, userID), true
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("user opted out", "user_id", userID)
	}
	return changed, nil
}

// OptIn makes the user eligible for selection again. It reports whether the set changed.
func (s *Service) OptIn(ctx context.Context, userID string) (bool, error) {
	changed, err := s.mutateOptOuts(ctx, func(ids []string) ([]string, bool) {
		if !slices.Contains(ids, userID) {
			return ids, false
		}
		return slices.DeleteFunc(ids, func(id string) bool { return id == userID }), true
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("user opted in", "user_id", userID)
	}
	return changed, nil
}

// mutateOptOuts is mutate for the opt-out set. fn reports whether it changed
// anything; nothing is written otherwise.
func (s *Service) mutateOptOuts(ctx context.Context, fn func([]string) ([]string, bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		set, err := s.store.GetOptedOut(ctx)
		if err != nil {
			return false, fmt.Errorf("get opted out: %w", err)
		}
		next, changed := fn(set.UserIDs)
		if !changed {
			return false, nil
		}
		err = s.store.SetOptedOut(ctx, next, set.Version)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt >= maxWriteAttempts {
			return false, fmt.Errorf("set opted out: %w", err)
		}
		s.logger.Warn("opt-out set changed concurrently, retrying", "attempt", attempt)
	}
}
