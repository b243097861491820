/**
 * @description
 * This file sets up the HTTP router for the subscription-edit-service using the go-chi/chi router.
 * It defines the API routes, applies middleware for logging, CORS, and authentication,
 * and maps the routes to their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the subscription-edit-service routes.
func NewRouter(h *Handler, auth func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Subscription edit service is healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Route("/subscriptions/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetSubscription)
			r.Get("/edits", h.handleEditHistory)
			r.Delete("/edit", h.handleDiscardEdit)
			r.Post("/edit/preview", h.handlePreviewEdit)
			r.Post("/edit/estimate", h.handleEstimateEdit)
			r.Post("/edit/apply", h.handleApplyEdit)
		})
	})

	return r
}
