package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// SuggestionStore lists and reviews classifier suggestions.
type SuggestionStore interface {
	GetTicket(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Ticket, error)
	ListSuggestions(ctx context.Context, ticketID uuid.UUID, tenantID uuid.UUID) ([]*models.Suggestion, error)
	ReviewSuggestion(ctx context.Context, params store.ReviewSuggestionParams) (*models.Suggestion, bool, error)
}

// MarkdownRenderer turns draft replies into safe HTML.
type MarkdownRenderer interface {
	ToHTML(markdown string) (string, error)
}

type suggestionView struct {
	*models.Suggestion
	DraftReplyHTML string `json:"draft_reply_html"`
}

type reviewResponse struct {
	Suggestion suggestionView `json:"suggestion"`
	Changed    bool           `json:"changed"`
}

func viewSuggestion(md MarkdownRenderer, sg *models.Suggestion) suggestionView {
	html, err := md.ToHTML(sg.DraftReply)
	if err != nil {
		slog.Warn("failed to render draft reply", "suggestion_id", sg.ID, "error", err)
	}
	return suggestionView{Suggestion: sg, DraftReplyHTML: html}
}

// NewListSuggestionsHandler returns an http.HandlerFunc for
// GET /api/v1/tickets/{ticketID}/suggestions.
func NewListSuggestionsHandler(s SuggestionStore, md MarkdownRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		ticketID, ok := pathUUID(w, r, "ticketID", "INVALID_TICKET_ID")
		if !ok {
			return
		}

		if _, err := s.GetTicket(r.Context(), ticketID, tenantID); err != nil {
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}
		suggestions, err := s.ListSuggestions(r.Context(), ticketID, tenantID)
		if err != nil {
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}

		views := make([]suggestionView, len(suggestions))
		for i, sg := range suggestions {
			views[i] = viewSuggestion(md, sg)
		}
		response.JSON(w, views)
	}
}

// NewReviewSuggestionHandler returns an http.HandlerFunc for the approve and
// reject routes. status is models.SuggestionStatusAccepted or
// models.SuggestionStatusRejected. Repeating a decision is a no-op reported
// with changed=false.
func NewReviewSuggestionHandler(s SuggestionStore, md MarkdownRenderer, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		ticketID, ok := pathUUID(w, r, "ticketID", "INVALID_TICKET_ID")
		if !ok {
			return
		}
		suggestionID, ok := pathUUID(w, r, "suggestionID", "INVALID_SUGGESTION_ID")
		if !ok {
			return
		}
		actorType, ok := actorType(w, r)
		if !ok {
			return
		}

		sg, changed, err := s.ReviewSuggestion(r.Context(), store.ReviewSuggestionParams{
			TenantID:     tenantID,
			TicketID:     ticketID,
			SuggestionID: suggestionID,
			Status:       status,
			ActorType:    actorType,
			Actor:        mw.Actor(r),
		})
		if err != nil {
			writeError(w, r, err, "SUGGESTION_NOT_FOUND")
			return
		}
		response.JSON(w, reviewResponse{Suggestion: viewSuggestion(md, sg), Changed: changed})
	}
}
