// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP routes. requestTimeout bounds every non
// websocket request; zero disables it.
func NewRouter(h *Handler, mw *Middleware, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(mw.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/", h.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit())
			if requestTimeout > 0 {
				r.Use(chimiddleware.Timeout(requestTimeout))
			}

			r.Get("/catalog", h.ListCatalog)
			r.Get("/catalog/{badgeID}", h.GetBadgeDefinition)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.With(mw.RateLimitCustom(RateLimitIngest)).Post("/events", h.IngestEvents)
				r.Post("/flush", h.Flush)

				r.Get("/badges", h.ListBadges)
				r.Post("/badges/check", h.CheckBadges)
				r.With(mw.RateLimitCustom(RateLimitMaintenance)).Post("/badges/recalculate", h.Recalculate)
				r.With(mw.RateLimitCustom(RateLimitMaintenance)).Post("/badges/validate", h.ValidateBadges)

				r.Get("/counters", h.GetCounters)
				r.With(mw.RateLimitCustom(RateLimitMaintenance)).Delete("/counters/{name}", h.ResetCounter)

				r.Put("/series/{docID}", h.PutSeries())
				r.Delete("/series/{docID}", h.deleteDocument(collectionSeries))
				r.Put("/movies/{docID}", h.PutMovie())
				r.Delete("/movies/{docID}", h.deleteDocument(collectionMovies))
				r.Put("/friends/{docID}", h.PutFriend())
				r.Delete("/friends/{docID}", h.deleteDocument(collectionFriends))
			})
		})

		r.With(mw.RateLimitCustom(RateLimitWebSocket)).Get("/users/{userID}/ws", h.WebSocket)
	})

	return r
}
