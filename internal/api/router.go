package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/rapidresolve/engine/internal/api/middleware"
	"github.com/rapidresolve/engine/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler            http.HandlerFunc
	CreateTicketHandler      http.HandlerFunc
	GetTicketHandler         http.HandlerFunc
	ListTicketsHandler       http.HandlerFunc
	CloseTicketHandler       http.HandlerFunc
	SubmitInteractionHandler http.HandlerFunc
	RequestSolutionHandler   http.HandlerFunc
	FeedbackHandler          http.HandlerFunc
	UploadAttachmentHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Rate-limited API routes
	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/tickets", orNotImplemented(deps.CreateTicketHandler))
		r.Get("/api/v1/tickets", orNotImplemented(deps.ListTicketsHandler))
		r.Get("/api/v1/tickets/{ticketID}", orNotImplemented(deps.GetTicketHandler))
		r.Post("/api/v1/tickets/{ticketID}/close", orNotImplemented(deps.CloseTicketHandler))

		r.Post("/api/v1/tickets/{ticketID}/interactions", orNotImplemented(deps.SubmitInteractionHandler))
		r.Post("/api/v1/tickets/{ticketID}/solution", orNotImplemented(deps.RequestSolutionHandler))
		r.Post("/api/v1/tickets/{ticketID}/feedback", orNotImplemented(deps.FeedbackHandler))
		r.Post("/api/v1/tickets/{ticketID}/attachments", orNotImplemented(deps.UploadAttachmentHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
