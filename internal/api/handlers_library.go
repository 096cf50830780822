// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/showtrail/internal/evaluator"
	"github.com/tomtom215/showtrail/internal/logging"
	"github.com/tomtom215/showtrail/internal/store"
	ws "github.com/tomtom215/showtrail/internal/websocket"
)

// Library collections a client may write.
const (
	collectionSeries  = "series"
	collectionMovies  = "movies"
	collectionFriends = "friends"
)

// putDocument stores one library document and drops the user's cached
// snapshot so the next check sees it.
func putDocument[T any](h *Handler, collection string, setID func(*T, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)
		p, ok := documentPath(rw, r)
		if !ok {
			return
		}
		var doc T
		if err := decodeBody(r, &doc); err != nil {
			rw.BadRequest(err.Error())
			return
		}
		setID(&doc, p.DocID)
		if !validateRequest(rw, &doc) {
			return
		}

		path := store.UserPath(p.UserID, collection, p.DocID)
		if err := store.SetJSON(r.Context(), h.deps.Store, path, doc); err != nil {
			respondFailure(rw, err)
			return
		}
		h.deps.Badges.Invalidate(p.UserID)
		logging.Ctx(r.Context()).Debug().Str("user_id", p.UserID).Str("path", path).Msg("Library document stored")
		rw.Success(doc)
	}
}

func (h *Handler) deleteDocument(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)
		p, ok := documentPath(rw, r)
		if !ok {
			return
		}
		path := store.UserPath(p.UserID, collection, p.DocID)
		if err := h.deps.Store.Remove(r.Context(), path); err != nil && !errors.Is(err, store.ErrNotFound) {
			respondFailure(rw, err)
			return
		}
		h.deps.Badges.Invalidate(p.UserID)
		rw.NoContent()
	}
}

// PutSeries stores a series with its watch state.
func (h *Handler) PutSeries() http.HandlerFunc {
	return putDocument(h, collectionSeries, func(s *evaluator.Series, id string) { s.ID = id })
}

// PutMovie stores a movie with its watch state.
func (h *Handler) PutMovie() http.HandlerFunc {
	return putDocument(h, collectionMovies, func(m *evaluator.Movie, id string) { m.ID = id })
}

// PutFriend stores a friend relationship.
func (h *Handler) PutFriend() http.HandlerFunc {
	return putDocument(h, collectionFriends, func(f *evaluator.Friend, id string) {
		f.ID = id
		if f.Since.IsZero() {
			f.Since = time.Now().UTC()
		}
	})
}

// WebSocket upgrades the connection and streams the user's notifications.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Hub == nil {
		rw.ServiceUnavailable("WebSocket service unavailable")
		return
	}
	uid, ok := userID(rw, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	if !h.deps.Hub.Attach(ws.NewClient(h.deps.Hub, conn, uid)) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
	}
}

// checkWebSocketOrigin admits requests without an Origin header (non
// browser clients) and browser origins allowed by CORS.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.mw != nil && h.mw.AllowsOrigin(origin) {
		return true
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
