// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/showtrail/internal/catalog"
	"github.com/tomtom215/showtrail/internal/counters"
	"github.com/tomtom215/showtrail/internal/logging"
)

// IngestResponse is returned by IngestEvents.
type IngestResponse struct {
	Accepted int    `json:"accepted"`
	State    string `json:"state"`
}

// IngestEvents records watch events for the user. Counters and badges
// update before the response; the activity summary follows after the
// debounce delay.
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	req, err := decodeIngest(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if !validateRequest(rw, &req) {
		return
	}

	ctx := logging.ContextWithUserID(r.Context(), uid)
	for i, e := range req.Events {
		if err := h.deps.Events.AddEvent(ctx, uid, e); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int("index", i).Msg("Watch event rejected")
			respondFailure(rw, err)
			return
		}
	}
	rw.Accepted(IngestResponse{Accepted: len(req.Events), State: h.deps.Events.State(uid).String()})
}

// Flush processes the user's buffered events now.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	if err := h.deps.Events.FlushUser(r.Context(), uid); err != nil {
		respondFailure(rw, err)
		return
	}
	rw.Success(IngestResponse{State: h.deps.Events.State(uid).String()})
}

// ListBadges returns the user's grants, newest first.
func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	earned, err := h.deps.Badges.EarnedBadges(r.Context(), uid)
	if err != nil {
		respondFailure(rw, err)
		return
	}
	list := make([]catalog.EarnedBadge, 0, len(earned))
	for _, b := range earned {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].EarnedAt.Equal(list[j].EarnedAt) {
			return list[i].EarnedAt.After(list[j].EarnedAt)
		}
		return list[i].ID < list[j].ID
	})
	rw.SuccessList(list, len(list))
}

// CheckBadges evaluates the user and returns the newly granted badges.
func (h *Handler) CheckBadges(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	granted, err := h.deps.Badges.CheckForNewBadges(r.Context(), uid)
	if err != nil {
		respondFailure(rw, err)
		return
	}
	if granted == nil {
		granted = []catalog.EarnedBadge{}
	}
	rw.SuccessList(granted, len(granted))
}

// Recalculate re-evaluates the user against freshly loaded data.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	granted, err := h.deps.Badges.Recalculate(r.Context(), uid)
	if err != nil {
		respondFailure(rw, err)
		return
	}
	if granted == nil {
		granted = []catalog.EarnedBadge{}
	}
	rw.SuccessList(granted, len(granted))
}

// ValidateBadges re-measures every grant. With ?fix=true grants that no
// longer hold are removed.
func (h *Handler) ValidateBadges(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	fix := false
	if raw := r.URL.Query().Get("fix"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			rw.BadRequest("fix must be a boolean")
			return
		}
		fix = parsed
	}
	report, err := h.deps.Badges.Validate(r.Context(), uid, fix)
	if err != nil {
		respondFailure(rw, err)
		return
	}
	rw.Success(report)
}

// CountersResponse is the body of GetCounters.
type CountersResponse struct {
	Counters map[string]int64                `json:"counters"`
	Streak   counters.Streak                 `json:"streak"`
	Windows  map[string]counters.BingeWindow `json:"windows"`
}

// GetCounters returns the user's counters, streak and live binge windows.
func (h *Handler) GetCounters(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	ctx := r.Context()
	all, err := h.deps.Counters.ReadAll(ctx, uid)
	if err != nil {
		respondFailure(rw, err)
		return
	}
	streak, err := h.deps.Counters.Streak(ctx, uid)
	if err != nil {
		respondFailure(rw, err)
		return
	}
	windows, err := h.deps.Counters.LiveWindows(ctx, uid)
	if err != nil {
		respondFailure(rw, err)
		return
	}
	rw.Success(CountersResponse{Counters: all, Streak: streak, Windows: windows})
}

// ResetCounter removes one named counter. Streak and binge window state
// are not affected.
func (h *Handler) ResetCounter(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	uid, ok := userID(rw, r)
	if !ok {
		return
	}
	ctx := logging.ContextWithUserID(r.Context(), uid)
	if err := h.deps.Counters.Reset(ctx, uid, chi.URLParam(r, "name")); err != nil {
		respondFailure(rw, err)
		return
	}
	h.deps.Badges.Invalidate(uid)
	rw.NoContent()
}

// ListCatalog returns every badge definition, optionally one category.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req := CatalogRequest{Category: r.URL.Query().Get("category")}
	if !validateRequest(rw, &req) {
		return
	}
	cat := h.deps.Badges.Catalog()
	var defs []catalog.Definition
	if req.Category == "" {
		defs = cat.List()
	} else {
		category := catalog.Category(req.Category)
		if !category.Valid() {
			rw.BadRequest("unknown category " + req.Category)
			return
		}
		defs = cat.ByCategory(category)
	}
	rw.SuccessList(defs, len(defs))
}

// GetBadgeDefinition returns one definition.
func (h *Handler) GetBadgeDefinition(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	def, ok := h.deps.Badges.Catalog().Get(chi.URLParam(r, "badgeID"))
	if !ok {
		rw.NotFound("Unknown badge")
		return
	}
	rw.Success(def)
}
