package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateTicket http.HandlerFunc
	GetTicket    http.HandlerFunc
	UpdateTicket http.HandlerFunc
	ListEvents   http.HandlerFunc

	TriggerTriage     http.HandlerFunc
	GetJob            http.HandlerFunc
	ListSuggestions   http.HandlerFunc
	ApproveSuggestion http.HandlerFunc
	RejectSuggestion  http.HandlerFunc

	IngestDocument http.HandlerFunc
	GetDocument    http.HandlerFunc
	Retrieve       http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeRead))

			r.Get("/api/v1/tickets/{ticketID}", orNotImplemented(deps.GetTicket))
			r.Get("/api/v1/tickets/{ticketID}/events", orNotImplemented(deps.ListEvents))
			r.Get("/api/v1/tickets/{ticketID}/suggestions", orNotImplemented(deps.ListSuggestions))
			r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
			r.Get("/api/v1/kb/documents/{documentID}", orNotImplemented(deps.GetDocument))
			r.Post("/api/v1/kb/retrieve", orNotImplemented(deps.Retrieve))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeWrite))

			r.Post("/api/v1/tickets", orNotImplemented(deps.CreateTicket))
			r.Patch("/api/v1/tickets/{ticketID}", orNotImplemented(deps.UpdateTicket))
			r.Post("/api/v1/tickets/{ticketID}/triage", orNotImplemented(deps.TriggerTriage))
			r.Post("/api/v1/tickets/{ticketID}/suggestions/{suggestionID}/approve", orNotImplemented(deps.ApproveSuggestion))
			r.Post("/api/v1/tickets/{ticketID}/suggestions/{suggestionID}/reject", orNotImplemented(deps.RejectSuggestion))
			r.Post("/api/v1/kb/documents", orNotImplemented(deps.IngestDocument))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
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
