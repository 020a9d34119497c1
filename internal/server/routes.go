package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers collects the endpoint handlers the router mounts. Keeping it
// an interface bundle lets tests mount fakes.
type Handlers struct {
	Health  http.HandlerFunc
	Emails  EmailRoutes
	Analyze http.HandlerFunc
}

// EmailRoutes are the three email endpoints.
type EmailRoutes struct {
	GetMetadata   http.HandlerFunc
	GetEmails     http.HandlerFunc
	GetEmailsByID http.HandlerFunc
}

// NewRouter builds the chi router with the full middleware chain and
// all API routes registered.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/emails/metadata", h.Emails.GetMetadata)
		r.Get("/emails", h.Emails.GetEmails)
		r.Post("/emails", h.Emails.GetEmailsByID)
		r.Post("/analyze", h.Analyze)
	})

	return Chain(
		r,
		LoggingMiddleware,
		RecoveryMiddleware,
		CORSMiddleware,
		SecurityMiddleware,
		SessionMiddleware,
	)
}
