// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.logging)

	// routes without authorization
	router.Group(func(r chi.Router) {
		r.Post("/api/auth/token", h.issueToken)
	})

	router.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Group(func(mut chi.Router) {
			mut.Use(h.rateLimit)
			mut.Post("/api/records/submit", h.submit)
			mut.Put("/api/operations/{id}/data", h.uploadChunk)
			mut.Post("/api/operations/{id}/complete", h.completeOperation)
		})

		r.Post("/api/records/fetch", h.fetch)
		r.Post("/api/zones", h.createZone)
		r.Delete("/api/zones/{scope}/{zone}", h.deleteZone)
		r.Post("/api/subscriptions", h.createSubscription)
		r.Post("/api/operations", h.registerOperation)
		r.Get("/api/operations/{id}", h.operationStatus)
		r.Post("/api/operations/{id}/cancel", h.cancelOperation)
		r.Get("/api/operations/{id}/data", h.downloadChunk)
	})

	return router
}
