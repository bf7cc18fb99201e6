package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Attempt routes (agent coding sessions keyed by task attempt)
	r.Route("/attempt", func(r chi.Router) {
		r.Get("/", s.listAttempts)

		r.Route("/{attemptID}", func(r chi.Router) {
			r.Post("/", s.startAttempt)
			r.Delete("/", s.cancelAttempt)
			r.Get("/status", s.getAttemptStatus)
			r.Post("/answer", s.answerAttempt)
			r.Get("/logs", s.getAttemptLogs)
		})
	})

	// Background shell routes
	r.Route("/shell", func(r chi.Router) {
		r.Get("/", s.listShells)

		r.Route("/{shellID}", func(r chi.Router) {
			r.Post("/", s.startShell)
			r.Delete("/", s.stopShell)
			r.Get("/status", s.getShellStatus)
			r.Get("/logs", s.getShellLogs)
		})
	})

	// Inline edit routes
	r.Route("/edit", func(r chi.Router) {
		r.Route("/{editID}", func(r chi.Router) {
			r.Post("/", s.startEdit)
			r.Delete("/", s.cancelEdit)
			r.Get("/status", s.getEditStatus)
			r.Get("/logs", s.getEditLogs)
		})
	})

	// Upload staging routes
	r.Route("/upload", func(r chi.Router) {
		r.Post("/", s.createUpload)

		r.Route("/{uploadID}", func(r chi.Router) {
			r.Get("/", s.getUpload)
			r.Delete("/", s.cancelUpload)
			r.Post("/touch", s.touchUpload)
			r.Get("/files", s.listUploadFiles)
			r.Post("/release", s.releaseUpload)
		})
	})

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)
	r.Get("/session/event", s.sessionEvents)
}
