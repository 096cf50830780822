// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package counters

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/metrics"
	"github.com/tomtom215/showtrail/internal/store"
)

// BingeWindow is an open viewing session for one timeframe.
type BingeWindow struct {
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
}

// Expired reports whether the window has closed at now.
func (w BingeWindow) Expired(now time.Time) bool {
	return now.After(w.WindowEnd)
}

// WindowUpdate is the outcome of RecordBingeEpisode for one timeframe.
type WindowUpdate struct {
	Timeframe string
	Window    BingeWindow

	// Expired is true when a stale window was cleared first.
	Expired bool

	// Opened is true when this episode started a new window.
	Opened bool
}

// DefaultWindows returns the three catalog timeframes.
func DefaultWindows() []Window {
	out := make([]Window, 0, len(catalog.Timeframes))
	for _, tf := range catalog.Timeframes {
		out = append(out, Window{Key: string(tf), Duration: tf.Duration()})
	}
	return out
}

func sessionPath(userID, timeframe string) string {
	return store.UserPath(userID, "sessions", timeframe)
}

// clearIfExpired removes the window at path when it has closed at now.
func (s *Store) clearIfExpired(ctx context.Context, path string, now time.Time) (bool, error) {
	cleared := false
	_, _, err := store.TransactJSON(ctx, s.db, path, func(cur BingeWindow, exists bool) (*BingeWindow, error) {
		cleared = false
		if !exists || !cur.Expired(now) {
			return nil, store.ErrTxnAborted
		}
		cleared = true
		return nil, nil
	})
	return cleared, err
}

// RecordBingeEpisode counts one episode into every timeframe window.
//
// The first phase clears each window that has already closed. The second
// opens a window with count 1 where none is live, or extends the live one
// without moving its end. A window that fails in either phase is lost for
// this episode; the others are still updated.
func (s *Store) RecordBingeEpisode(ctx context.Context, userID string) ([]WindowUpdate, error) {
	now := s.now()
	updates := make([]WindowUpdate, len(s.windows))
	failed := make([]bool, len(s.windows))

	var errs []error
	for i, w := range s.windows {
		updates[i].Timeframe = w.Key
		cleared, err := s.clearIfExpired(ctx, sessionPath(userID, w.Key), now)
		if err != nil {
			s.lost(ctx, "binge_expire", userID, w.Key, err)
			errs = append(errs, err)
			failed[i] = true
			continue
		}
		if cleared {
			updates[i].Expired = true
			metrics.BingeWindowsExpired.WithLabelValues(w.Key).Inc()
		}
	}

	for i, w := range s.windows {
		if failed[i] {
			continue
		}
		opened := false
		win, _, err := store.TransactJSON(ctx, s.db, sessionPath(userID, w.Key), func(cur BingeWindow, exists bool) (*BingeWindow, error) {
			if !exists || cur.Expired(now) {
				opened = true
				return &BingeWindow{Count: 1, WindowStart: now, WindowEnd: now.Add(w.Duration)}, nil
			}
			opened = false
			cur.Count++
			return &cur, nil
		})
		if err != nil {
			s.lost(ctx, "binge_record", userID, w.Key, err)
			errs = append(errs, err)
			continue
		}
		recordApplied("binge_record")
		updates[i].Window = win
		updates[i].Opened = opened

		if _, err := s.Max(ctx, userID, BingeBest(w.Key), win.Count); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return updates, errors.Join(errs...)
	}
	return updates, nil
}

// FinalizeExpiredSessions clears every window that has closed and returns
// how many were removed. A failing window does not stop the others.
func (s *Store) FinalizeExpiredSessions(ctx context.Context, userID string) (int, error) {
	now := s.now()
	removed := 0
	var errs []error
	for _, w := range s.windows {
		cleared, err := s.clearIfExpired(ctx, sessionPath(userID, w.Key), now)
		if err != nil {
			s.lost(ctx, "finalize", userID, w.Key, err)
			errs = append(errs, err)
			continue
		}
		if cleared {
			removed++
			metrics.BingeWindowsExpired.WithLabelValues(w.Key).Inc()
		}
	}
	if removed > 0 {
		recordApplied("finalize")
	}
	return removed, errors.Join(errs...)
}

// LiveWindows returns the user's windows that are still open, by timeframe.
func (s *Store) LiveWindows(ctx context.Context, userID string) (map[string]BingeWindow, error) {
	now := s.now()
	out := make(map[string]BingeWindow, len(s.windows))
	for _, w := range s.windows {
		var win BingeWindow
		err := store.GetJSON(ctx, s.db, sessionPath(userID, w.Key), &win)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !win.Expired(now) {
			out[w.Key] = win
		}
	}
	return out, nil
}
