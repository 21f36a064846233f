package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// EventStore reads a ticket's audit trail.
type EventStore interface {
	GetTicket(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Ticket, error)
	ListEvents(ctx context.Context, filter store.EventFilter) ([]*models.TicketEvent, int, error)
}

// NewListEventsHandler returns an http.HandlerFunc for
// GET /api/v1/tickets/{ticketID}/events. Events are returned newest first.
func NewListEventsHandler(s EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		ticketID, ok := pathUUID(w, r, "ticketID", "INVALID_TICKET_ID")
		if !ok {
			return
		}

		q := r.URL.Query()
		filter := store.EventFilter{
			TenantID:  tenantID,
			TicketID:  ticketID,
			EventType: q.Get("event_type"),
			ActorType: q.Get("actor_type"),
		}
		if filter.ActorType != "" && !models.ValidActorType(filter.ActorType) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"actor_type must be one of user, system, ai, webhook", nil)
			return
		}

		var err error
		if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
			return
		}
		if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "until must be a valid RFC3339 timestamp", nil)
			return
		}
		if !filter.Since.IsZero() && !filter.Until.IsZero() && filter.Until.Before(filter.Since) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "until must not be before since", nil)
			return
		}

		page, limit, ok := pagination(w, r)
		if !ok {
			return
		}
		filter.Page, filter.Limit = page, limit

		if _, err := s.GetTicket(r.Context(), ticketID, tenantID); err != nil {
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}

		events, total, err := s.ListEvents(r.Context(), filter)
		if err != nil {
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}
		response.Collection(w, events, response.Page(page, limit, total))
	}
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// pagination reads page (default 1) and limit (default 20, at most 100).
func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, limit := 1, defaultPageLimit
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return 0, 0, false
		}
		page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageLimit {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
			return 0, 0, false
		}
		limit = n
	}
	return page, limit, true
}
