// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package counters maintains the per-user numbers that cannot be recomputed
// from watch records alone: named monotonic counters, the daily streak and
// the sliding binge windows.
//
// Every mutation is a single store transaction. When the store reports a
// transport failure the update is logged and dropped; it is never retried,
// so a counter can lag but never double count.
package counters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
	"github.com/tomtom215/showtrail/internal/store"
)

// Well-known counter names.
const (
	QuickwatchEpisodes = "quickwatch_episodes"
	RewatchEpisodes    = "rewatch_episodes"
	MarathonSeasons    = "marathon_seasons"
	CurrentStreak      = "current_streak"
	LongestStreak      = "longest_streak"

	bingeBestPrefix = "binge_best_"
)

// BingeBest is the counter holding the best window count for a timeframe.
func BingeBest(timeframe string) string {
	return bingeBestPrefix + timeframe
}

// ErrInvalidName is returned for counter names that cannot be a path segment.
var ErrInvalidName = errors.New("counters: invalid counter name")

// Window is a named sliding window length.
type Window struct {
	Key      string
	Duration time.Duration
}

// Options configures a Store.
type Options struct {
	// Windows are the binge timeframes to maintain. Defaults to
	// DefaultWindows.
	Windows []Window

	// Location defines calendar days for streaks. Defaults to UTC.
	Location *time.Location

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Store is the counter store.
type Store struct {
	db      store.Store
	windows []Window
	loc     *time.Location
	now     func() time.Time
}

// New creates a counter store on db.
func New(db store.Store, opts Options) *Store {
	s := &Store{db: db, windows: opts.Windows, loc: opts.Location, now: opts.Now}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.windows == nil {
		s.windows = DefaultWindows()
	}
	return s
}

// Timeframes returns the configured binge windows.
func (s *Store) Timeframes() []Window {
	out := make([]Window, len(s.windows))
	copy(out, s.windows)
	return out
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

func counterPath(userID, name string) string {
	return store.UserPath(userID, "counters", name)
}

func validName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Increment atomically adds amount to the named counter, creating it at
// zero first, and returns the new value.
func (s *Store) Increment(ctx context.Context, userID, name string, amount int64) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	res, err := s.db.Transaction(ctx, counterPath(userID, name), func(current []byte) ([]byte, error) {
		v, err := parseCounter(current)
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(v+amount, 10)), nil
	})
	if err != nil {
		s.lost(ctx, "increment", userID, name, err)
		return 0, err
	}
	recordApplied("increment")
	return parseCounter(res.Value)
}

// Max raises the named counter to value if it is lower.
func (s *Store) Max(ctx context.Context, userID, name string, value int64) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	res, err := s.db.Transaction(ctx, counterPath(userID, name), func(current []byte) ([]byte, error) {
		v, err := parseCounter(current)
		if err != nil {
			return nil, err
		}
		if current != nil && v >= value {
			return nil, store.ErrTxnAborted
		}
		return []byte(strconv.FormatInt(value, 10)), nil
	})
	if err != nil {
		s.lost(ctx, "max", userID, name, err)
		return 0, err
	}
	if res.Committed {
		recordApplied("max")
	} else {
		recordNoop("max")
	}
	return parseCounter(res.Value)
}

// Read returns the named counter, or 0 when it was never written.
func (s *Store) Read(ctx context.Context, userID, name string) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	data, err := s.db.Get(ctx, counterPath(userID, name))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseCounter(data)
}

// ReadAll returns every counter of a user, including the streak fields.
func (s *Store) ReadAll(ctx context.Context, userID string) (map[string]int64, error) {
	entries, err := s.db.List(ctx, store.UserPath(userID, "counters"))
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(entries)+2)
	for _, e := range entries {
		v, err := parseCounter(e.Value)
		if err != nil {
			logging.Warn().Err(err).Str("path", e.Path).Msg("Skipping unreadable counter")
			continue
		}
		out[store.LastSegment(e.Path)] = v
	}

	streak, err := s.Streak(ctx, userID)
	if err != nil {
		return nil, err
	}
	out[CurrentStreak] = int64(streak.Current)
	out[LongestStreak] = int64(streak.Longest)
	return out, nil
}

// Reset removes the named counter. It is a maintenance operation.
func (s *Store) Reset(ctx context.Context, userID, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := s.db.Remove(ctx, counterPath(userID, name)); err != nil {
		return fmt.Errorf("reset counter %s: %w", name, err)
	}
	logging.Ctx(ctx).Info().Str("user_id", userID).Str("counter", name).Msg("Counter reset")
	return nil
}

func (s *Store) lost(ctx context.Context, op, userID, name string, err error) {
	metrics.RecordCounterUpdate(op, "lost")
	logging.Ctx(ctx).Warn().
		Err(err).
		Str("user_id", userID).
		Str("counter", name).
		Str("operation", op).
		Msg("Counter update lost")
}

func recordApplied(op string) { metrics.RecordCounterUpdate(op, "applied") }
func recordNoop(op string)    { metrics.RecordCounterUpdate(op, "noop") }

func parseCounter(data []byte) (int64, error) {
	if data == nil {
		return 0, nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("decode counter: %w", err)
	}
	return v, nil
}
