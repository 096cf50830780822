// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package counters

import (
	"context"
	"errors"

	"github.com/tomtom215/showtrail/internal/store"
)

const dateLayout = "2006-01-02"

// Streak is the persisted daily streak record.
type Streak struct {
	Current          int    `json:"current"`
	Longest          int    `json:"longest"`
	LastActivityDate string `json:"lastActivityDate"`
}

// Best returns the larger of the current and longest streak.
func (s Streak) Best() int {
	return max(s.Current, s.Longest)
}

func streakPath(userID string) string {
	return store.UserPath(userID, "streak")
}

// Streak returns the user's streak record, zero when never written.
func (s *Store) Streak(ctx context.Context, userID string) (Streak, error) {
	var st Streak
	err := store.GetJSON(ctx, s.db, streakPath(userID), &st)
	if errors.Is(err, store.ErrNotFound) {
		return Streak{}, nil
	}
	return st, err
}

// UpdateStreak records activity for today. A second call on the same
// calendar day changes nothing. Activity on the day after the last one
// extends the streak; any longer gap restarts it at 1.
func (s *Store) UpdateStreak(ctx context.Context, userID string) (Streak, error) {
	now := s.now().In(s.loc)
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)

	st, committed, err := store.TransactJSON(ctx, s.db, streakPath(userID), func(cur Streak, exists bool) (*Streak, error) {
		if exists && cur.LastActivityDate == today {
			return nil, store.ErrTxnAborted
		}
		next := cur
		if exists && cur.LastActivityDate == yesterday {
			next.Current = cur.Current + 1
		} else {
			next.Current = 1
		}
		next.Longest = max(next.Longest, next.Current)
		next.LastActivityDate = today
		return &next, nil
	})
	if err != nil {
		s.lost(ctx, "streak", userID, "streak", err)
		return Streak{}, err
	}
	if committed {
		recordApplied("streak")
	} else {
		recordNoop("streak")
	}
	return st, nil
}
