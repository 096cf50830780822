// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package api serves the achievement engine over HTTP.
//
// Every user-scoped route lives under /api/v1/users/{userID}. Responses use
// the APIResponse envelope; validation failures carry field details.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/showtrail/internal/activity"
	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/classifier"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/evaluator"
	"github.com/tomtom215/showtrail/internal/store"
	"github.com/tomtom215/showtrail/internal/websocket"
)

// EventIngester accepts watch events.
type EventIngester interface {
	AddEvent(ctx context.Context, userID string, e classifier.WatchEvent) error
	FlushUser(ctx context.Context, userID string) error
	State(userID string) activity.State
	SessionCount() int
}

// BadgeService evaluates, lists and repairs badges.
type BadgeService interface {
	Catalog() *catalog.Catalog
	CheckForNewBadges(ctx context.Context, userID string) ([]catalog.EarnedBadge, error)
	EarnedBadges(ctx context.Context, userID string) (map[string]catalog.EarnedBadge, error)
	Recalculate(ctx context.Context, userID string) ([]catalog.EarnedBadge, error)
	Validate(ctx context.Context, userID string, fix bool) (evaluator.Report, error)
	Invalidate(userID string)
}

// CounterReader exposes the counter store.
type CounterReader interface {
	ReadAll(ctx context.Context, userID string) (map[string]int64, error)
	Streak(ctx context.Context, userID string) (counters.Streak, error)
	LiveWindows(ctx context.Context, userID string) (map[string]counters.BingeWindow, error)
	Reset(ctx context.Context, userID, name string) error
}

// BreakerStateReporter reports the store circuit breaker.
type BreakerStateReporter interface {
	State() gobreaker.State
}

// Deps are the handler's collaborators. Hub and Breaker are optional.
type Deps struct {
	Store    store.Store
	Events   EventIngester
	Badges   BadgeService
	Counters CounterReader
	Hub      *websocket.Hub
	Breaker  BreakerStateReporter
	Version  string
}

// Handler implements the HTTP endpoints.
type Handler struct {
	deps      Deps
	mw        *Middleware
	startTime time.Time
}

// NewHandler creates a handler.
func NewHandler(deps Deps, mw *Middleware) *Handler {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{deps: deps, mw: mw, startTime: time.Now()}
}

// respondFailure maps domain errors to status codes.
func respondFailure(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, classifier.ErrMalformedEvent):
		rw.ValidationError(err.Error(), nil)
	case errors.Is(err, counters.ErrInvalidName):
		rw.BadRequest(err.Error())
	case errors.Is(err, store.ErrInvalidPath):
		rw.BadRequest(err.Error())
	case errors.Is(err, store.ErrNotFound):
		rw.NotFound("Not found")
	case errors.Is(err, activity.ErrClosed), errors.Is(err, store.ErrClosed):
		rw.ServiceUnavailable("Shutting down")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rw.ServiceUnavailable("Storage temporarily unavailable")
	default:
		rw.StoreError(err)
	}
}

// Health reports liveness and dependency state. It answers 503 while the
// store breaker is open.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	status := HealthStatus{
		Status:   "healthy",
		Version:  h.deps.Version,
		Uptime:   time.Since(h.startTime).Seconds(),
		Badges:   h.deps.Badges.Catalog().Len(),
		Sessions: h.deps.Events.SessionCount(),
	}
	if h.deps.Hub != nil {
		status.WebSocketClients = h.deps.Hub.GetClientCount()
	}
	if h.deps.Breaker != nil {
		state := h.deps.Breaker.State()
		status.StoreBreaker = state.String()
		if state == gobreaker.StateOpen {
			status.Status = "degraded"
			rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Store circuit breaker open", status)
			return
		}
	}
	rw.Success(status)
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	Uptime           float64 `json:"uptime_seconds"`
	Badges           int     `json:"badges"`
	Sessions         int     `json:"active_sessions"`
	WebSocketClients int     `json:"websocket_clients"`
	StoreBreaker     string  `json:"store_breaker,omitempty"`
}
