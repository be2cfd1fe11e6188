package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-labeler/internal/web/handlers"
	"github.com/kozaktomas/face-labeler/internal/web/static"
)

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handler.State)
		r.Get("/candidate", s.handler.Candidate)
		r.Get("/candidate/preview", s.handler.Preview)
		r.Post("/decision", s.handler.Decide)
		r.Get("/events", s.handler.Events)
		r.Get("/summary", s.handler.Summary)
	})

	s.router.Get("/", serveIndex)
}

// serveIndex serves the embedded single-page UI.
func serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(static.Index())
}
