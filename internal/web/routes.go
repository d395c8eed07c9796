package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-counter/internal/observability"
	"github.com/kozaktomas/face-counter/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	sessionHandler := handlers.NewSessionHandler(s.controller)
	memoryHandler := handlers.NewMemoryHandler(s.store, s.index)
	eventsHandler := handlers.NewEventsHandler(s.controller)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Session lifecycle and live data
		r.Get("/session", sessionHandler.Get)
		r.Post("/session/start", sessionHandler.Start)
		r.Post("/session/stop", sessionHandler.Stop)
		r.Post("/session/new", sessionHandler.New)
		r.Get("/session/stats", sessionHandler.Stats)
		r.Get("/session/persons", sessionHandler.Persons)
		r.Get("/session/events", eventsHandler.Stream)
		r.Get("/session/export", sessionHandler.Export)

		// Cross-session face memory
		r.Get("/memory", memoryHandler.List)
		r.Get("/memory/stats", memoryHandler.Stats)
		r.Delete("/memory", memoryHandler.Clear)
	})

	s.router.Handle("/metrics", observability.MetricsHandler())
}
