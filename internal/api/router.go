// Package api serves a local JSON view of the chat state so UI shells can
// render and drive the client.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/api/middleware"
	"github.com/eldtechnologies/buddychat/internal/handlers"
)

// Options configures the router.
type Options struct {
	// Token, when set, is required as a bearer credential on write routes.
	Token string
	// AllowedOrigins lists UI origins permitted by CORS.
	AllowedOrigins []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.RequireJSON)

	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/session", h.Session)
	r.Get("/previews", h.ListPreviews)
	r.Get("/contacts", h.ListContacts)
	r.Get("/thread", h.GetThread)
	r.Get("/stats", h.Stats)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(opts.Token))

		r.Post("/thread/more", h.LoadMore)
		r.Post("/thread/{id}", h.OpenThread)
		r.Delete("/thread", h.CloseThread)
		r.Post("/messages/{id}", h.SendMessage)
	})

	return r
}
