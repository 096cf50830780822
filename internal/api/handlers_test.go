// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/showtrail/internal/activity"
	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/evaluator"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/notify"
	"github.com/tomtom215/showtrail/internal/testinfra"
)

//nolint:gochecknoinits // init keeps test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

type stubBreaker struct{ state gobreaker.State }

func (b stubBreaker) State() gobreaker.State { return b.state }

type fixture struct {
	router  http.Handler
	eval    *evaluator.Evaluator
	manager *activity.Manager
}

func newFixture(t *testing.T, mwConfig MiddlewareConfig, breaker BreakerStateReporter) *fixture {
	t.Helper()
	db := testinfra.NewMemoryStore(t)
	c := counters.New(db, counters.Options{})
	eval := evaluator.New(catalog.Default(), db, c, evaluator.Config{})
	pub := notify.NewPublisher(notify.Options{})
	mgr := activity.NewManager(activity.Config{DebounceDelay: time.Hour}, c, eval, pub)
	t.Cleanup(func() {
		_ = mgr.Close(context.Background())
		eval.Close()
		_ = pub.Close()
	})

	mw := NewMiddleware(mwConfig)
	h := NewHandler(Deps{
		Store:    db,
		Events:   mgr,
		Badges:   eval,
		Counters: c,
		Breaker:  breaker,
		Version:  "test",
	}, mw)
	return &fixture{router: NewRouter(h, mw, 0), eval: eval, manager: mgr}
}

func noLimits() MiddlewareConfig {
	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitRequests = 0
	return cfg
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp APIResponse
	if w.Code != http.StatusNoContent {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: undecodable body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, resp
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d: %s", w.Code, want, w.Body.String())
	}
}

func badgeIDs(t *testing.T, resp APIResponse) []string {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	var badges []catalog.EarnedBadge
	if err := json.Unmarshal(raw, &badges); err != nil {
		t.Fatalf("decode badges: %v", err)
	}
	ids := make([]string, len(badges))
	for i, b := range badges {
		ids[i] = b.ID
	}
	return ids
}

func TestHealth(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	w, resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	expectStatus(t, w, http.StatusOK)

	data, _ := resp.Data.(map[string]any)
	if data["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", data["status"])
	}
	if data["badges"] != float64(catalog.Default().Len()) {
		t.Errorf("badges = %v, want %d", data["badges"], catalog.Default().Len())
	}
	if data["active_sessions"] != float64(0) {
		t.Errorf("active_sessions = %v, want 0", data["active_sessions"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestHealthBreakerOpen(t *testing.T) {
	f := newFixture(t, noLimits(), stubBreaker{state: gobreaker.StateOpen})
	w, resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)
	if resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestCatalogListing(t *testing.T) {
	f := newFixture(t, noLimits(), nil)

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all", "", http.StatusOK, catalog.Default().Len()},
		{"one category", "?category=social", http.StatusOK, 4},
		{"unknown category", "?category=cooking", http.StatusBadRequest, 0},
		{"malformed category", "?category=Not-A-Slug", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, http.MethodGet, "/api/v1/catalog"+tt.query, nil)
			expectStatus(t, w, tt.status)
			if tt.status != http.StatusOK {
				return
			}
			if resp.Meta == nil || resp.Meta.Count == nil || *resp.Meta.Count != tt.count {
				t.Errorf("meta = %+v, want count %d", resp.Meta, tt.count)
			}
		})
	}
}

func TestGetBadgeDefinition(t *testing.T) {
	f := newFixture(t, noLimits(), nil)

	w, resp := f.do(t, http.MethodGet, "/api/v1/catalog/social_bronze", nil)
	expectStatus(t, w, http.StatusOK)
	data, _ := resp.Data.(map[string]any)
	if data["id"] != "social_bronze" {
		t.Errorf("id = %v", data["id"])
	}

	w, _ = f.do(t, http.MethodGet, "/api/v1/catalog/nope", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestFriendGrantsSocialBadgeOnce(t *testing.T) {
	f := newFixture(t, noLimits(), nil)

	w, _ := f.do(t, http.MethodPut, "/api/v1/users/u1/friends/f1", map[string]any{})
	expectStatus(t, w, http.StatusOK)

	w, resp := f.do(t, http.MethodPost, "/api/v1/users/u1/badges/check", nil)
	expectStatus(t, w, http.StatusOK)
	if ids := badgeIDs(t, resp); len(ids) != 1 || ids[0] != "social_bronze" {
		t.Fatalf("granted = %v, want [social_bronze]", ids)
	}

	_, resp = f.do(t, http.MethodPost, "/api/v1/users/u1/badges/check", nil)
	if ids := badgeIDs(t, resp); len(ids) != 0 {
		t.Errorf("second check granted %v", ids)
	}

	_, resp = f.do(t, http.MethodGet, "/api/v1/users/u1/badges", nil)
	if ids := badgeIDs(t, resp); len(ids) != 1 {
		t.Errorf("earned = %v, want one badge", ids)
	}
}

func TestIngestEventUpdatesCountersAndBadges(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	now := time.Now().UTC()

	event := map[string]any{
		"seriesId":      "expanse",
		"seriesName":    "The Expanse",
		"seasonNumber":  1,
		"episodeNumber": 1,
		"airDate":       now.Format("2006-01-02"),
		"watchedAt":     now.Format(time.RFC3339),
	}
	w, resp := f.do(t, http.MethodPost, "/api/v1/users/u1/events", map[string]any{"events": []any{event}})
	expectStatus(t, w, http.StatusAccepted)
	data, _ := resp.Data.(map[string]any)
	if data["accepted"] != float64(1) || data["state"] != activity.StateAccumulating.String() {
		t.Errorf("ingest response = %v", data)
	}

	w, resp = f.do(t, http.MethodGet, "/api/v1/users/u1/counters", nil)
	expectStatus(t, w, http.StatusOK)
	raw, _ := json.Marshal(resp.Data)
	var got CountersResponse
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Streak.Current != 1 {
		t.Errorf("streak = %+v, want current 1", got.Streak)
	}
	if got.Counters[counters.QuickwatchEpisodes] != 1 {
		t.Errorf("quickwatch counter = %d, want 1", got.Counters[counters.QuickwatchEpisodes])
	}
	if w, ok := got.Windows[string(catalog.TimeframeDay)]; !ok || w.Count != 1 {
		t.Errorf("day window = %+v", got.Windows)
	}

	_, resp = f.do(t, http.MethodGet, "/api/v1/users/u1/badges", nil)
	ids := badgeIDs(t, resp)
	if len(ids) != 1 || ids[0] != "quickwatch_bronze" {
		t.Errorf("earned = %v, want [quickwatch_bronze]", ids)
	}

	w, resp = f.do(t, http.MethodPost, "/api/v1/users/u1/flush", nil)
	expectStatus(t, w, http.StatusOK)
	data, _ = resp.Data.(map[string]any)
	if data["state"] != activity.StateIdle.String() {
		t.Errorf("state after flush = %v", data["state"])
	}
}

func TestResetCounter(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	now := time.Now().UTC()

	w, _ := f.do(t, http.MethodPost, "/api/v1/users/u1/events", map[string]any{
		"seriesId":      "expanse",
		"seasonNumber":  1,
		"episodeNumber": 1,
		"airDate":       now.Format("2006-01-02"),
		"watchedAt":     now.Format(time.RFC3339),
	})
	expectStatus(t, w, http.StatusAccepted)

	w, _ = f.do(t, http.MethodDelete, "/api/v1/users/u1/counters/"+counters.QuickwatchEpisodes, nil)
	expectStatus(t, w, http.StatusNoContent)

	_, resp := f.do(t, http.MethodGet, "/api/v1/users/u1/counters", nil)
	raw, _ := json.Marshal(resp.Data)
	var got CountersResponse
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if v := got.Counters[counters.QuickwatchEpisodes]; v != 0 {
		t.Errorf("quickwatch counter after reset = %d, want 0", v)
	}
	if got.Streak.Current != 1 {
		t.Errorf("streak = %+v, reset must leave it alone", got.Streak)
	}
}

func TestIngestSingleBareEvent(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	w, _ := f.do(t, http.MethodPost, "/api/v1/users/u1/events", map[string]any{
		"seriesId":      "show",
		"seasonNumber":  1,
		"episodeNumber": 2,
		"watchedAt":     time.Now().UTC().Format(time.RFC3339),
	})
	expectStatus(t, w, http.StatusAccepted)
}

func TestIngestRejectsInvalidEvents(t *testing.T) {
	f := newFixture(t, noLimits(), nil)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"missing series", "/api/v1/users/u1/events", map[string]any{"events": []any{map[string]any{"watchedAt": time.Now().Format(time.RFC3339)}}}},
		{"empty batch", "/api/v1/users/u1/events", map[string]any{"events": []any{}}},
		{"negative episode", "/api/v1/users/u1/events", map[string]any{"seriesId": "s", "episodeNumber": -1, "watchedAt": time.Now().Format(time.RFC3339)}},
		{"user id too long", "/api/v1/users/" + strings.Repeat("x", 129) + "/events", map[string]any{"seriesId": "s", "watchedAt": time.Now().Format(time.RFC3339)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, http.MethodPost, tt.path, tt.body)
			expectStatus(t, w, http.StatusBadRequest)
			if resp.Success || resp.Error == nil {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestIngestRejectsGarbage(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u1/events", strings.NewReader("{oops"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestValidateWithFixRemovesStaleGrant(t *testing.T) {
	f := newFixture(t, noLimits(), nil)

	f.do(t, http.MethodPut, "/api/v1/users/u1/friends/f1", map[string]any{})
	f.do(t, http.MethodPost, "/api/v1/users/u1/badges/check", nil)

	w, _ := f.do(t, http.MethodDelete, "/api/v1/users/u1/friends/f1", nil)
	expectStatus(t, w, http.StatusNoContent)

	w, _ = f.do(t, http.MethodPost, "/api/v1/users/u1/badges/validate?fix=maybe", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w, resp := f.do(t, http.MethodPost, "/api/v1/users/u1/badges/validate?fix=true", nil)
	expectStatus(t, w, http.StatusOK)
	raw, _ := json.Marshal(resp.Data)
	var report evaluator.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatal(err)
	}
	if report.Checked != 1 || len(report.Invalid) != 1 || !report.Invalid[0].Removed {
		t.Fatalf("report = %+v", report)
	}

	_, resp = f.do(t, http.MethodGet, "/api/v1/users/u1/badges", nil)
	if ids := badgeIDs(t, resp); len(ids) != 0 {
		t.Errorf("earned after fix = %v", ids)
	}
}

func TestRecalculate(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		w, _ := f.do(t, http.MethodPut, "/api/v1/users/u1/series/"+id, map[string]any{"name": "Show " + id})
		expectStatus(t, w, http.StatusOK)
	}

	w, resp := f.do(t, http.MethodPost, "/api/v1/users/u1/badges/recalculate", nil)
	expectStatus(t, w, http.StatusOK)
	if ids := badgeIDs(t, resp); len(ids) != 1 || ids[0] != "explorer_bronze" {
		t.Errorf("recalculated = %v, want [explorer_bronze]", ids)
	}
}

func TestPutSeriesValidatesBody(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	w, _ := f.do(t, http.MethodPut, "/api/v1/users/u1/series/s1", map[string]any{"name": "Show", "rating": 42})
	expectStatus(t, w, http.StatusBadRequest)

	w, _ = f.do(t, http.MethodPut, "/api/v1/users/u1/movies/m1", nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestWebSocketUnavailableWithoutHub(t *testing.T) {
	f := newFixture(t, noLimits(), nil)
	w, _ := f.do(t, http.MethodGet, "/api/v1/users/u1/ws", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)
}
