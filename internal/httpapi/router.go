package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lotpass/lotpass/internal/metrics"
	"github.com/lotpass/lotpass/internal/middleware"
)

// maxRequestBody bounds all request bodies. Every payload here is a
// small JSON object.
const maxRequestBody = 64 * 1024

// NewRouter assembles the full route tree with middleware.
func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(middleware.HTTPLogging(h.logger))
	r.Use(middleware.MaxBodySize(maxRequestBody))

	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/api", func(r chi.Router) {
		// Account endpoints
		r.Post("/register", h.HandleRegister)
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)

		// Attendant terminal endpoints. Deliberately unauthenticated:
		// the terminal sits on the gate's private network and the token
		// itself is the capability being checked.
		r.Post("/scan/preview", h.HandlePreview)
		r.Post("/scan/confirm", h.HandleConfirm)

		// Session-bound endpoints
		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/me", h.HandleMe)
			r.Get("/history", h.HandleHistory)
			r.Post("/token", h.HandleIssueToken)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Get("/ws", h.HandleSubscribe)
	})

	return r
}
