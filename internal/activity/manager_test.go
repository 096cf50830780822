// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/classifier"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/testinfra"
)

// mockChecker returns scripted results, one per call.
type mockChecker struct {
	mu          sync.Mutex
	results     [][]catalog.EarnedBadge
	err         error
	calls       int
	invalidated int

	// When gate is set, the first call signals entered and waits on gate.
	gate     chan struct{}
	entered  chan struct{}
	gateOnce sync.Once
}

func (c *mockChecker) CheckForNewBadges(_ context.Context, _ string) ([]catalog.EarnedBadge, error) {
	if c.gate != nil {
		c.gateOnce.Do(func() {
			close(c.entered)
			<-c.gate
		})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.results) == 0 {
		return nil, nil
	}
	next := c.results[0]
	c.results = c.results[1:]
	return next, nil
}

func (c *mockChecker) Invalidate(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
}

func (c *mockChecker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type mockSink struct {
	mu        sync.Mutex
	summaries []Summary
}

func (s *mockSink) PublishSummary(_ context.Context, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

func (s *mockSink) All() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, len(s.summaries))
	copy(out, s.summaries)
	return out
}

type fixture struct {
	m        *Manager
	counters *counters.Store
	checker  *mockChecker
	sink     *mockSink
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := testinfra.NewMemoryStore(t)
	f := &fixture{
		counters: counters.New(db, counters.Options{}),
		checker:  &mockChecker{},
		sink:     &mockSink{},
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = time.Hour
	}
	f.m = NewManager(cfg, f.counters, f.checker, f.sink)
	t.Cleanup(func() { _ = f.m.Close(context.Background()) })
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func event(episode int, watched time.Time) classifier.WatchEvent {
	return classifier.WatchEvent{
		SeriesID:      "42",
		SeriesName:    "The Expanse",
		SeasonNumber:  1,
		EpisodeNumber: episode,
		WatchedAt:     watched,
	}
}

func TestAddEventAppliesCountersImmediately(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	now := time.Now().UTC()

	e := event(1, now)
	e.AirDate = now.Add(-time.Hour).Format(time.RFC3339)
	e.IsRewatch = true
	if err := f.m.AddEvent(ctx, "u1", e); err != nil {
		t.Fatal(err)
	}

	if v, _ := f.counters.Read(ctx, "u1", counters.QuickwatchEpisodes); v != 1 {
		t.Errorf("quickwatch counter = %d, want 1", v)
	}
	if v, _ := f.counters.Read(ctx, "u1", counters.RewatchEpisodes); v != 1 {
		t.Errorf("rewatch counter = %d, want 1", v)
	}
	if st, _ := f.counters.Streak(ctx, "u1"); st.Current != 1 {
		t.Errorf("streak = %+v", st)
	}
	live, _ := f.counters.LiveWindows(ctx, "u1")
	if live["day"].Count != 1 {
		t.Errorf("live windows = %v", live)
	}
	if f.checker.Calls() != 1 {
		t.Errorf("expected one immediate badge check, got %d", f.checker.Calls())
	}
	if got := f.m.State("u1"); got != StateAccumulating {
		t.Errorf("State() = %s, want accumulating", got)
	}
	if len(f.sink.All()) != 0 {
		t.Error("nothing should be published before the debounce expires")
	}
}

func TestAddEventRejectsMalformedEvent(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.m.AddEvent(context.Background(), "u1", classifier.WatchEvent{SeriesID: "42"})
	if !errors.Is(err, classifier.ErrMalformedEvent) {
		t.Fatalf("AddEvent() error = %v", err)
	}
	if f.checker.Calls() != 0 {
		t.Error("a rejected event must not trigger a check")
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	f := newFixture(t, Config{DebounceDelay: 30 * time.Millisecond, EmitBingeActivity: true})
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		if err := f.m.AddEvent(ctx, "u1", event(i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "flush", func() bool { return len(f.sink.All()) > 0 })
	waitFor(t, "idle", func() bool { return f.m.State("u1") == StateIdle })

	got := f.sink.All()
	if len(got) != 1 {
		t.Fatalf("expected one aggregate summary, got %d", len(got))
	}
	if !got[0].Aggregate || got[0].Pattern != classifier.PatternBinge || len(got[0].Episodes) != 3 {
		t.Errorf("summary = %+v", got[0])
	}
	// Three immediate checks plus one after the flush.
	if f.checker.Calls() != 4 {
		t.Errorf("checks = %d, want 4", f.checker.Calls())
	}
}

func TestBingeAggregateSuppressedByDefault(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		_ = f.m.AddEvent(ctx, "u1", event(i, base.Add(time.Duration(i)*time.Minute)))
	}
	if err := f.m.FlushUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	got := f.sink.All()
	if len(got) != 3 {
		t.Fatalf("expected per-event summaries, got %d", len(got))
	}
	for _, s := range got {
		if s.Aggregate {
			t.Errorf("binge should not emit an aggregate: %+v", s)
		}
	}
}

func TestSeasonCompleteIncrementsMarathon(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		e := event(i, base.Add(time.Duration(i)*time.Hour))
		e.SeasonEpisodeCount = 3
		_ = f.m.AddEvent(ctx, "u1", e)
	}
	if err := f.m.FlushAll(ctx); err != nil {
		t.Fatal(err)
	}

	if v, _ := f.counters.Read(ctx, "u1", counters.MarathonSeasons); v != 1 {
		t.Errorf("marathon counter = %d, want 1", v)
	}
	got := f.sink.All()
	if len(got) != 1 || got[0].Pattern != classifier.PatternSeasonComplete {
		t.Errorf("summaries = %+v", got)
	}
}

func TestClassificationFailureFallsBackToEachEvent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	base := time.Now().UTC()

	good := event(1, base)
	bad := event(2, base.Add(time.Minute))
	bad.AirDate = "not a date"
	other := classifier.WatchEvent{SeriesID: "7", SeasonNumber: 1, EpisodeNumber: 1, WatchedAt: base}

	for _, e := range []classifier.WatchEvent{good, bad, other} {
		if err := f.m.AddEvent(ctx, "u1", e); err != nil {
			t.Fatal(err)
		}
	}
	_ = f.m.FlushUser(ctx, "u1")

	got := f.sink.All()
	if len(got) != 3 {
		t.Fatalf("every buffered event must be handled, got %d summaries", len(got))
	}
	for _, s := range got {
		if s.Aggregate {
			t.Errorf("fallback must not aggregate: %+v", s)
		}
	}
	if v, _ := f.counters.Read(ctx, "u1", counters.MarathonSeasons); v != 0 {
		t.Errorf("fallback must not apply batch effects, marathon = %d", v)
	}
}

func TestClassificationFailureOnlyAffectsItsGroup(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		e := event(i, base.Add(time.Duration(i)*time.Hour))
		e.SeasonEpisodeCount = 3
		if err := f.m.AddEvent(ctx, "u1", e); err != nil {
			t.Fatal(err)
		}
	}
	bad := classifier.WatchEvent{SeriesID: "7", SeasonNumber: 1, EpisodeNumber: 1, WatchedAt: base, AirDate: "soon"}
	if err := f.m.AddEvent(ctx, "u1", bad); err != nil {
		t.Fatal(err)
	}
	_ = f.m.FlushUser(ctx, "u1")

	if v, _ := f.counters.Read(ctx, "u1", counters.MarathonSeasons); v != 1 {
		t.Errorf("marathon counter = %d, want 1", v)
	}
	got := f.sink.All()
	if len(got) != 2 {
		t.Fatalf("summaries = %d, want one aggregate and one event", len(got))
	}
	if !got[0].Aggregate || got[0].Pattern != classifier.PatternSeasonComplete {
		t.Errorf("first summary = %+v, want season aggregate", got[0])
	}
	if got[1].Aggregate || got[1].SeriesID != "7" {
		t.Errorf("second summary = %+v, want single event of series 7", got[1])
	}
}

func TestCloseFlushesEventsAddedConcurrently(t *testing.T) {
	f := newFixture(t, Config{})
	f.checker.gate = make(chan struct{})
	f.checker.entered = make(chan struct{})
	ctx := context.Background()

	added := make(chan error, 1)
	go func() { added <- f.m.AddEvent(ctx, "u1", event(1, time.Now())) }()
	<-f.checker.entered

	closed := make(chan error, 1)
	go func() { closed <- f.m.Close(ctx) }()
	select {
	case <-closed:
		t.Fatal("Close returned while an AddEvent was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.checker.gate)
	if err := <-added; err != nil {
		t.Fatalf("AddEvent() = %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if n := len(f.sink.All()); n != 1 {
		t.Errorf("summaries after Close = %d, want 1", n)
	}
}

func TestFlushUserCancelsTimer(t *testing.T) {
	f := newFixture(t, Config{DebounceDelay: 40 * time.Millisecond})
	ctx := context.Background()

	_ = f.m.AddEvent(ctx, "u1", event(1, time.Now().UTC()))
	_ = f.m.FlushUser(ctx, "u1")
	if n := len(f.sink.All()); n != 1 {
		t.Fatalf("summaries after flush = %d", n)
	}

	time.Sleep(100 * time.Millisecond)
	if n := len(f.sink.All()); n != 1 {
		t.Errorf("cancelled timer still flushed, summaries = %d", n)
	}
	if got := f.m.State("u1"); got != StateIdle {
		t.Errorf("State() = %s, want idle", got)
	}
}

func TestCallbackGetsWholeListOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	def := catalog.Default()
	a, _ := def.Get("streak_bronze")
	b, _ := def.Get("quickwatch_bronze")
	now := time.Now()
	f.checker.results = [][]catalog.EarnedBadge{{a.Earn(now, "3 days"), b.Earn(now, "1 episode")}}

	var mu sync.Mutex
	var deliveries [][]catalog.EarnedBadge
	f.m.OnBadgesEarned("u1", func(_ string, badges []catalog.EarnedBadge) {
		mu.Lock()
		defer mu.Unlock()
		deliveries = append(deliveries, badges)
	})
	defaultCalled := false
	f.m.SetDefaultCallback(func(string, []catalog.EarnedBadge) { defaultCalled = true })

	_ = f.m.AddEvent(ctx, "u1", event(1, now))
	_ = f.m.FlushUser(ctx, "u1")

	mu.Lock()
	defer mu.Unlock()
	if len(deliveries) != 1 || len(deliveries[0]) != 2 {
		t.Errorf("deliveries = %v", deliveries)
	}
	if defaultCalled {
		t.Error("default callback must not run for a user with its own callback")
	}
}

func TestCheckFailureDeliversNothing(t *testing.T) {
	f := newFixture(t, Config{})
	f.checker.err = errors.New("snapshot unavailable")
	called := false
	f.m.SetDefaultCallback(func(string, []catalog.EarnedBadge) { called = true })

	if err := f.m.AddEvent(context.Background(), "u1", event(1, time.Now())); err != nil {
		t.Fatalf("check failures must not fail ingestion, got %v", err)
	}
	if called {
		t.Error("callback invoked despite failed check")
	}
}

func TestUsersAreIndependent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_ = f.m.AddEvent(ctx, "u1", event(1, time.Now()))
	_ = f.m.AddEvent(ctx, "u2", event(1, time.Now()))
	_ = f.m.FlushUser(ctx, "u1")

	if f.m.State("u1") != StateIdle || f.m.State("u2") != StateAccumulating {
		t.Errorf("states = %s, %s", f.m.State("u1"), f.m.State("u2"))
	}
	if n := f.m.SessionCount(); n != 2 {
		t.Errorf("SessionCount() = %d, want 2", n)
	}
}

func TestSweepReleasesIdleSessions(t *testing.T) {
	clock := testinfra.NewClock(time.Now())
	f := newFixture(t, Config{Now: clock.Now})
	ctx := context.Background()

	_ = f.m.AddEvent(ctx, "u1", event(1, clock.Now()))
	_ = f.m.AddEvent(ctx, "u2", event(1, clock.Now()))
	_ = f.m.FlushUser(ctx, "u1")

	clock.Advance(time.Hour)
	_, released := f.m.Sweep(ctx, 30*time.Minute)
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}
	if n := f.m.SessionCount(); n != 1 {
		t.Errorf("SessionCount() = %d, want 1", n)
	}
	if got := f.m.State("u2"); got != StateAccumulating {
		t.Errorf("u2 state = %s, want accumulating", got)
	}
}

func TestCloseFlushesAndRejects(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_ = f.m.AddEvent(ctx, "u1", event(1, time.Now()))
	if err := f.m.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.sink.All()) != 1 {
		t.Error("Close must flush pending events")
	}
	if err := f.m.AddEvent(ctx, "u1", event(2, time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("AddEvent() after Close = %v", err)
	}
}
