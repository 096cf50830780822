// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package evaluator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/store"
)

// Episode is one watch record inside a season.
type Episode struct {
	Number     int  `json:"number" validate:"gte=0"`
	Watched    bool `json:"watched"`
	WatchCount int  `json:"watchCount" validate:"gte=0"`
}

// Season groups the episodes of one season.
type Season struct {
	Number   int       `json:"number" validate:"gte=0"`
	Episodes []Episode `json:"episodes" validate:"dive"`
}

// Series is a show in the user's library.
type Series struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Rating  float64  `json:"rating,omitempty" validate:"gte=0,lte=10"`
	Seasons []Season `json:"seasons" validate:"dive"`
}

// Complete reports whether every episode of every season is watched. A
// series without any episode is never complete.
func (s Series) Complete() bool {
	episodes := 0
	for _, season := range s.Seasons {
		for _, ep := range season.Episodes {
			if !ep.Watched {
				return false
			}
			episodes++
		}
	}
	return episodes > 0
}

// Movie is a film in the user's library.
type Movie struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Rating     float64 `json:"rating,omitempty" validate:"gte=0,lte=10"`
	Watched    bool    `json:"watched"`
	WatchCount int     `json:"watchCount" validate:"gte=0"`
}

// Friend is one friend relationship.
type Friend struct {
	ID    string    `json:"id"`
	Since time.Time `json:"since,omitempty"`
}

// Activity is an entry of the user's activity log.
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Snapshot is the read-only aggregate of a user's durable facts used for
// one or more evaluations.
type Snapshot struct {
	UserID     string
	Series     []Series
	Movies     []Movie
	Friends    []Friend
	Activities []Activity
	Counters   map[string]int64
	Streak     counters.Streak
	Windows    map[string]counters.BingeWindow
	LoadedAt   time.Time
}

// Counter returns a named counter, 0 when absent.
func (s *Snapshot) Counter(name string) int64 {
	return s.Counters[name]
}

// Loader fetches snapshots from the store.
type Loader struct {
	db       store.Store
	counters *counters.Store
}

// NewLoader creates a loader.
func NewLoader(db store.Store, c *counters.Store) *Loader {
	return &Loader{db: db, counters: c}
}

// Load reads every part of the snapshot in parallel. Any failing part
// fails the whole load.
func (l *Loader) Load(ctx context.Context, userID string) (*Snapshot, error) {
	snap := &Snapshot{UserID: userID, LoadedAt: l.counters.Now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, err := listDocs[Series](gctx, l.db, userID, "series", func(s *Series, id string) {
			if s.ID == "" {
				s.ID = id
			}
		})
		snap.Series = series
		return err
	})
	g.Go(func() error {
		movies, err := listDocs[Movie](gctx, l.db, userID, "movies", func(m *Movie, id string) {
			if m.ID == "" {
				m.ID = id
			}
		})
		snap.Movies = movies
		return err
	})
	g.Go(func() error {
		friends, err := listDocs[Friend](gctx, l.db, userID, "friends", func(f *Friend, id string) {
			if f.ID == "" {
				f.ID = id
			}
		})
		snap.Friends = friends
		return err
	})
	g.Go(func() error {
		activities, err := listDocs[Activity](gctx, l.db, userID, "activities", func(a *Activity, id string) {
			if a.ID == "" {
				a.ID = id
			}
		})
		sort.Slice(activities, func(i, j int) bool { return activities[i].CreatedAt.After(activities[j].CreatedAt) })
		snap.Activities = activities
		return err
	})
	g.Go(func() error {
		all, err := l.counters.ReadAll(gctx, userID)
		snap.Counters = all
		return err
	})
	g.Go(func() error {
		st, err := l.counters.Streak(gctx, userID)
		snap.Streak = st
		return err
	})
	g.Go(func() error {
		windows, err := l.counters.LiveWindows(gctx, userID)
		snap.Windows = windows
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", userID, err)
	}
	return snap, nil
}

// listDocs decodes the documents of one collection in key order.
func listDocs[T any](ctx context.Context, db store.Store, userID, collection string, fill func(*T, string)) ([]T, error) {
	prefix := store.UserPath(userID, collection)
	docs, skipped, err := store.ListJSON[T](ctx, db, prefix)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logging.Warn().Str("user_id", userID).Str("collection", collection).Int("skipped", skipped).Msg("Skipped undecodable documents")
	}

	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]T, 0, len(docs))
	for _, p := range paths {
		doc := docs[p]
		fill(&doc, store.LastSegment(p))
		out = append(out, doc)
	}
	return out, nil
}
