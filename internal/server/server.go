package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lumina/internal/studio"
)

// New constructs the HTTP server with routes and middleware.
func New(port string, handler studio.Handler, staticFS http.Handler) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", handler.ListProjects)
			r.Post("/", handler.CreateProject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.GetProject)
				r.Delete("/", handler.DeleteProject)
				r.Post("/redesign", handler.Redesign)
				r.Post("/chat", handler.Chat)
				r.Post("/reset", handler.Reset)
			})
		})
		r.Get("/presets", handler.Presets)
		r.Post("/generate", handler.Generate)
		r.Get("/events", handler.StreamEvents)
	})

	if staticFS != nil {
		// Serve the static frontend
		router.Handle("/*", staticFS)
	}

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Long enough for an SSE subscriber or a render round trip.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}
