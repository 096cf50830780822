// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package activity ingests watch events per user. Every event updates the
// user's counters and triggers a badge check right away; the event is also
// held for a short debounce so a burst of near-simultaneous marks can be
// classified together into one aggregate activity.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/classifier"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/metrics"
)

// ErrClosed is returned by AddEvent after Close.
var ErrClosed = errors.New("activity: manager closed")

// Counters is the counter store as seen by the manager.
type Counters interface {
	UpdateStreak(ctx context.Context, userID string) (counters.Streak, error)
	Increment(ctx context.Context, userID, name string, amount int64) (int64, error)
	RecordBingeEpisode(ctx context.Context, userID string) ([]counters.WindowUpdate, error)
	FinalizeExpiredSessions(ctx context.Context, userID string) (int, error)
}

// BadgeChecker evaluates a user's badges.
type BadgeChecker interface {
	CheckForNewBadges(ctx context.Context, userID string) ([]catalog.EarnedBadge, error)
	Invalidate(userID string)
}

// SummarySink receives activity summaries for the activity feed.
type SummarySink interface {
	PublishSummary(ctx context.Context, s Summary) error
}

// BadgeCallback receives every badge earned by one logical update.
type BadgeCallback func(userID string, badges []catalog.EarnedBadge)

// Config tunes the manager.
type Config struct {
	DebounceDelay     time.Duration
	ReleaseWindow     time.Duration
	BingeWindow       time.Duration
	EmitBingeActivity bool
	Location          *time.Location

	// Now is the clock used for summaries and session idleness.
	Now func() time.Time
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: time.Second,
		ReleaseWindow: classifier.DefaultReleaseWindow,
		BingeWindow:   classifier.DefaultBingeWindow,
		Location:      time.UTC,
	}
}

// Manager owns the per-user sessions.
type Manager struct {
	cfg      Config
	counters Counters
	checker  BadgeChecker
	sink     SummarySink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// adds tracks AddEvent calls between the closed check and buffering.
	adds sync.WaitGroup

	mu              sync.Mutex
	sessions        map[string]*session
	callbacks       map[string]BadgeCallback
	defaultCallback BadgeCallback
	closed          bool
}

// NewManager creates a manager. sink may be nil.
func NewManager(cfg Config, c Counters, checker BadgeChecker, sink SummarySink) *Manager {
	def := DefaultConfig()
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = def.DebounceDelay
	}
	if cfg.ReleaseWindow <= 0 {
		cfg.ReleaseWindow = def.ReleaseWindow
	}
	if cfg.BingeWindow <= 0 {
		cfg.BingeWindow = def.BingeWindow
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		counters:  c,
		checker:   checker,
		sink:      sink,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session),
		callbacks: make(map[string]BadgeCallback),
	}
}

func (m *Manager) classifierOptions() classifier.Options {
	return classifier.Options{
		ReleaseWindow: m.cfg.ReleaseWindow,
		BingeWindow:   m.cfg.BingeWindow,
		Location:      m.cfg.Location,
	}
}

// OnBadgesEarned registers the callback for one user, replacing any
// previous one.
func (m *Manager) OnBadgesEarned(userID string, cb BadgeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb == nil {
		delete(m.callbacks, userID)
		return
	}
	m.callbacks[userID] = cb
}

// SetDefaultCallback registers the callback used for users without one.
func (m *Manager) SetDefaultCallback(cb BadgeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultCallback = cb
}

func (m *Manager) callbackFor(userID string) BadgeCallback {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.callbacks[userID]; ok {
		return cb
	}
	return m.defaultCallback
}

// sessionFor returns the user's session, creating it on first use. The
// caller must call m.adds.Done once the event is buffered.
func (m *Manager) sessionFor(userID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.adds.Add(1)
	s, ok := m.sessions[userID]
	if !ok {
		s = newSession(userID, m.cfg.Now())
		m.sessions[userID] = s
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	return s, nil
}

func (m *Manager) lookup(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

func (m *Manager) snapshotSessions() []*session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// State returns the batching state of a user.
func (m *Manager) State(userID string) State {
	if s := m.lookup(userID); s != nil {
		return s.state()
	}
	return StateIdle
}

// SessionCount returns the number of users that currently have a session.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AddEvent applies the event's counter effects and checks badges
// immediately, then buffers it for classification.
func (m *Manager) AddEvent(ctx context.Context, userID string, e classifier.WatchEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s, err := m.sessionFor(userID)
	if err != nil {
		return err
	}
	defer m.adds.Done()
	metrics.EventsIngested.Inc()

	m.applyEventCounters(ctx, userID, e)
	m.checker.Invalidate(userID)
	m.check(ctx, s)

	s.buffer(e, m.cfg.Now(), m.cfg.DebounceDelay, func(gen uint64) {
		m.onTimer(s, gen)
	})
	logging.Ctx(ctx).Debug().
		Str("user_id", userID).
		Str("series_id", e.SeriesID).
		Int("season", e.SeasonNumber).
		Int("episode", e.EpisodeNumber).
		Msg("Watch event buffered")
	return nil
}

// applyEventCounters runs the per-episode counter updates. Failures are
// already logged by the counter store and do not stop the other updates.
func (m *Manager) applyEventCounters(ctx context.Context, userID string, e classifier.WatchEvent) {
	_, _ = m.counters.UpdateStreak(ctx, userID)

	quick, err := classifier.IsQuickwatch(e, m.classifierOptions())
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("user_id", userID).Msg("Ignoring air date for quickwatch")
	}
	if quick {
		_, _ = m.counters.Increment(ctx, userID, counters.QuickwatchEpisodes, 1)
	}
	if e.IsRewatch {
		_, _ = m.counters.Increment(ctx, userID, counters.RewatchEpisodes, 1)
	}
	_, _ = m.counters.RecordBingeEpisode(ctx, userID)
}

func (m *Manager) onTimer(s *session, gen uint64) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	events := s.take(gen)
	if len(events) == 0 {
		return
	}
	m.process(m.ctx, s, events)
}

// FlushUser processes the user's pending events now.
func (m *Manager) FlushUser(ctx context.Context, userID string) error {
	s := m.lookup(userID)
	if s == nil {
		return nil
	}
	events := s.take(0)
	if len(events) == 0 {
		return nil
	}
	m.process(ctx, s, events)
	return nil
}

// FlushAll processes every user's pending events. Users are independent
// and flush concurrently.
func (m *Manager) FlushAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, s := range m.snapshotSessions() {
		g.Go(func() error {
			events := s.take(0)
			if len(events) > 0 {
				m.process(gctx, s, events)
			}
			return nil
		})
	}
	return g.Wait()
}

// Sweep finalizes expired binge windows for every known user and drops
// sessions that have been idle since before idleAfter ago.
func (m *Manager) Sweep(ctx context.Context, idleAfter time.Duration) (finalized, released int) {
	cutoff := m.cfg.Now().Add(-idleAfter)
	for _, s := range m.snapshotSessions() {
		n, _ := m.counters.FinalizeExpiredSessions(ctx, s.userID)
		finalized += n
		if idleAfter > 0 && s.idleSince(cutoff) {
			m.release(s)
			released++
		}
	}
	return finalized, released
}

func (m *Manager) release(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.userID] == s {
		delete(m.sessions, s.userID)
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
}

// Close stops accepting events and flushes every user, including events
// from AddEvent calls that were already past the closed check.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.adds.Wait()
	err := m.FlushAll(ctx)
	m.wg.Wait()
	m.cancel()
	return err
}

// check runs one serialized badge check and delivers the result.
func (m *Manager) check(ctx context.Context, s *session) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	badges, err := m.checker.CheckForNewBadges(ctx, s.userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", s.userID).Msg("Badge check failed")
		return
	}
	if len(badges) == 0 {
		return
	}
	if cb := m.callbackFor(s.userID); cb != nil {
		cb(s.userID, badges)
	}
}

// process runs one flush of events for a session.
func (m *Manager) process(ctx context.Context, s *session, events []classifier.WatchEvent) {
	defer s.doneFlushing()

	plan := m.plan(ctx, s.userID, events)
	if plan.seasons > 0 {
		_, _ = m.counters.Increment(ctx, s.userID, counters.MarathonSeasons, int64(plan.seasons))
	}
	m.publish(ctx, plan.summaries)

	m.checker.Invalidate(s.userID)
	m.check(ctx, s)
}

type flushPlan struct {
	summaries []Summary
	seasons   int
}

type groupKey struct {
	seriesID string
	season   int
}

// plan groups events by series and season and classifies each group. A
// group that fails to classify falls back to one summary per event and
// does not affect the other groups.
func (m *Manager) plan(ctx context.Context, userID string, events []classifier.WatchEvent) flushPlan {
	var p flushPlan
	var order []groupKey
	groups := make(map[groupKey][]classifier.WatchEvent)
	for _, e := range events {
		k := groupKey{e.SeriesID, e.SeasonNumber}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	opts := m.classifierOptions()
	now := m.cfg.Now()
	for _, k := range order {
		group := groups[k]
		res, err := classifyGroup(group, opts)
		if err != nil {
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("user_id", userID).
				Str("series_id", k.seriesID).
				Int("season", k.season).
				Int("events", len(group)).
				Msg("Classification failed, handling group individually")
			metrics.RecordBatchFlush("fallback")
			p.summaries = append(p.summaries, m.eventSummaries(userID, group, now)...)
			continue
		}

		emit := res.ShouldBatch && (res.PatternType != classifier.PatternBinge || m.cfg.EmitBingeActivity)
		if !emit {
			metrics.RecordBatchFlush("individual")
			p.summaries = append(p.summaries, m.eventSummaries(userID, group, now)...)
			continue
		}
		metrics.RecordBatchFlush(string(res.PatternType))
		if res.PatternType == classifier.PatternSeasonComplete {
			p.seasons++
		}
		p.summaries = append(p.summaries, aggregateSummary(userID, group, res, now))
	}
	return p
}

// classifyGroup runs the classifier on one group, turning a panic into an
// error.
func classifyGroup(group []classifier.WatchEvent, opts classifier.Options) (res classifier.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return classifier.Classify(group, opts)
}

func (m *Manager) eventSummaries(userID string, events []classifier.WatchEvent, now time.Time) []Summary {
	opts := m.classifierOptions()
	out := make([]Summary, 0, len(events))
	for _, e := range events {
		quick, _ := classifier.IsQuickwatch(e, opts)
		out = append(out, eventSummary(userID, e, quick, now))
	}
	return out
}

func (m *Manager) publish(ctx context.Context, summaries []Summary) {
	if m.sink == nil {
		return
	}
	for _, sum := range summaries {
		if err := m.sink.PublishSummary(ctx, sum); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", sum.UserID).Msg("Activity summary dropped")
		}
	}
}
