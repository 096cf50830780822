// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package evaluator decides which badges a user has earned.
//
// Evaluation reads a cached snapshot of the user's durable facts, measures
// every badge the user does not hold yet through the rule registered for
// its category, and persists each new grant with a write-if-absent
// transaction. Evaluating an already granted badge is a silent no-op, so
// a check can be repeated or run concurrently without duplicating grants.
package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/showtrail/internal/cache"
	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
	"github.com/tomtom215/showtrail/internal/store"
)

// DefaultSnapshotTTL is how long a loaded snapshot is reused.
const DefaultSnapshotTTL = 5 * time.Minute

// Config tunes the evaluator.
type Config struct {
	SnapshotTTL time.Duration

	// Now stamps grants. Defaults to time.Now.
	Now func() time.Time
}

// Evaluator checks, recalculates and validates badges.
type Evaluator struct {
	catalog *catalog.Catalog
	db      store.Store
	loader  *Loader
	now     func() time.Time

	snapshots *cache.Cache[*Snapshot]
	loads     singleflight.Group

	genMu       sync.Mutex
	generations map[string]uint64

	rulesMu sync.RWMutex
	rules   map[catalog.Category]Rule
}

// New creates an evaluator with the default rules registered.
func New(cat *catalog.Catalog, db store.Store, c *counters.Store, cfg Config) *Evaluator {
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Evaluator{
		catalog:     cat,
		db:          db,
		loader:      NewLoader(db, c),
		now:         cfg.Now,
		snapshots:   cache.New[*Snapshot](cfg.SnapshotTTL, cache.WithClock(cfg.Now)),
		generations: make(map[string]uint64),
		rules:       make(map[catalog.Category]Rule),
	}
	for _, r := range DefaultRules() {
		e.RegisterRule(r)
	}
	return e
}

// RegisterRule installs the rule for its category, replacing any other.
func (e *Evaluator) RegisterRule(r Rule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.rules[r.Category()] = r
	logging.Debug().Str("category", string(r.Category())).Msg("registered badge rule")
}

func (e *Evaluator) rule(category catalog.Category) (Rule, error) {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	r, ok := e.rules[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRule, category)
	}
	return r, nil
}

// Catalog returns the catalog being evaluated.
func (e *Evaluator) Catalog() *catalog.Catalog {
	return e.catalog
}

// Close releases the snapshot cache.
func (e *Evaluator) Close() {
	e.snapshots.Close()
}

// Invalidate drops the user's cached snapshot. A load already in flight
// is not cached once it finishes.
func (e *Evaluator) Invalidate(userID string) {
	e.genMu.Lock()
	e.generations[userID]++
	e.genMu.Unlock()
	e.snapshots.Delete(userID)
}

func (e *Evaluator) generation(userID string) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.generations[userID]
}

// Snapshot returns the cached snapshot, loading it on a miss. Concurrent
// misses for the same user share one load. The shared load is not tied to
// any one caller's cancellation; a canceled caller stops waiting while the
// others still get the result.
func (e *Evaluator) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	if snap, ok := e.snapshots.Get(userID); ok {
		metrics.SnapshotCacheHits.Inc()
		return snap, nil
	}
	metrics.SnapshotCacheMisses.Inc()

	gen := e.generation(userID)
	key := userID + "#" + strconv.FormatUint(gen, 10)
	loadCtx := context.WithoutCancel(ctx)
	ch := e.loads.DoChan(key, func() (any, error) {
		snap, err := e.loader.Load(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		if e.generation(userID) == gen {
			e.snapshots.Set(userID, snap)
		}
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func badgesPrefix(userID string) string {
	return store.UserPath(userID, "badges")
}

// BadgePath is where a user's grant of a badge is stored.
func BadgePath(userID, badgeID string) string {
	return store.UserPath(userID, "badges", badgeID)
}

// EarnedBadges returns the user's grants keyed by badge id.
func (e *Evaluator) EarnedBadges(ctx context.Context, userID string) (map[string]catalog.EarnedBadge, error) {
	docs, skipped, err := store.ListJSON[catalog.EarnedBadge](ctx, e.db, badgesPrefix(userID))
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logging.Warn().Str("user_id", userID).Int("skipped", skipped).Msg("Skipped undecodable grants")
	}
	out := make(map[string]catalog.EarnedBadge, len(docs))
	for path, b := range docs {
		id := store.LastSegment(path)
		if b.ID == "" {
			b.ID = id
		}
		out[id] = b
	}
	return out, nil
}

// CheckForNewBadges grants every badge whose requirement the user now
// meets and returns only the grants this call created. A grant that fails
// to persist is logged and left for the next check. An error means the
// user's data could not be read and nothing was evaluated.
func (e *Evaluator) CheckForNewBadges(ctx context.Context, userID string) ([]catalog.EarnedBadge, error) {
	start := time.Now()
	defer func() { metrics.RecordEvaluation(time.Since(start)) }()

	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		metrics.EvaluationErrors.WithLabelValues("snapshot").Inc()
		return nil, err
	}
	earned, err := e.EarnedBadges(ctx, userID)
	if err != nil {
		metrics.EvaluationErrors.WithLabelValues("earned").Inc()
		return nil, fmt.Errorf("load grants for %s: %w", userID, err)
	}

	log := logging.Ctx(ctx)
	var granted []catalog.EarnedBadge
	for _, def := range e.catalog.List() {
		if _, ok := earned[def.ID]; ok {
			continue
		}
		m, err := e.measure(snap, def)
		if err != nil {
			metrics.EvaluationErrors.WithLabelValues("rule").Inc()
			log.Warn().Err(err).Str("badge_id", def.ID).Msg("Badge rule failed")
			continue
		}
		if !m.Met(def.Requirement) {
			continue
		}

		grant := def.Earn(e.now().UTC(), m.Details)
		created, err := e.grant(ctx, userID, grant)
		if err != nil {
			metrics.EvaluationErrors.WithLabelValues("grant").Inc()
			log.Warn().Err(err).Str("user_id", userID).Str("badge_id", def.ID).Msg("Badge grant not persisted")
			continue
		}
		if !created {
			continue
		}
		metrics.RecordBadgeGranted(string(def.Category))
		log.Info().
			Str("user_id", userID).
			Str("badge_id", def.ID).
			Str("details", m.Details).
			Msg("Badge earned")
		granted = append(granted, grant)
	}
	return granted, nil
}

func (e *Evaluator) measure(snap *Snapshot, def catalog.Definition) (Measurement, error) {
	r, err := e.rule(def.Category)
	if err != nil {
		return Measurement{}, err
	}
	return r.Measure(snap, def.Requirement)
}

// grant writes b unless a grant for the same id exists. It reports
// whether this call created it.
func (e *Evaluator) grant(ctx context.Context, userID string, b catalog.EarnedBadge) (bool, error) {
	created := false
	_, _, err := store.TransactJSON(ctx, e.db, BadgePath(userID, b.ID), func(_ catalog.EarnedBadge, exists bool) (*catalog.EarnedBadge, error) {
		if exists {
			created = false
			return nil, store.ErrTxnAborted
		}
		created = true
		return &b, nil
	})
	return created, err
}

// Recalculate evaluates against freshly loaded data. It is meant for
// migration and repair.
func (e *Evaluator) Recalculate(ctx context.Context, userID string) ([]catalog.EarnedBadge, error) {
	e.Invalidate(userID)
	granted, err := e.CheckForNewBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("user_id", userID).Int("granted", len(granted)).Msg("Badges recalculated")
	return granted, nil
}
