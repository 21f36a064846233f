package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// TicketStore is the ticket subset of the data layer.
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket, actorType string, actor *string) error
	GetTicket(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, params store.UpdateTicketParams) (*models.Ticket, error)
}

type createTicketRequest struct {
	RequesterEmail string `json:"requester_email" validate:"required,email,max=254"`
	Subject        string `json:"subject"         validate:"required,max=255"`
	Body           string `json:"body"            validate:"max=65536"`
	Priority       string `json:"priority"        validate:"omitempty,oneof=low medium high urgent"`
	AssignedTeam   string `json:"assigned_team"   validate:"max=100"`
}

type updateTicketRequest struct {
	Status       *string `json:"status"        validate:"omitempty,oneof=open in_progress resolved"`
	Priority     *string `json:"priority"      validate:"omitempty,oneof=low medium high urgent"`
	AssignedTeam *string `json:"assigned_team" validate:"omitempty,max=100"`
}

// NewCreateTicketHandler returns an http.HandlerFunc for POST /api/v1/tickets.
func NewCreateTicketHandler(s TicketStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		actorType, ok := actorType(w, r)
		if !ok {
			return
		}

		var req createTicketRequest
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Subject) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "subject is required", nil)
			return
		}

		priority := req.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}
		ticket := &models.Ticket{
			TenantID:       tenantID,
			RequesterEmail: req.RequesterEmail,
			Subject:        req.Subject,
			Body:           req.Body,
			Status:         models.TicketStatusOpen,
			Priority:       priority,
			AssignedTeam:   req.AssignedTeam,
		}
		if err := s.CreateTicket(r.Context(), ticket, actorType, mw.Actor(r)); err != nil {
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}
		response.Created(w, ticket)
	}
}

// NewGetTicketHandler returns an http.HandlerFunc for GET /api/v1/tickets/{ticketID}.
func NewGetTicketHandler(s TicketStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		ticketID, ok := pathUUID(w, r, "ticketID", "INVALID_TICKET_ID")
		if !ok {
			return
		}

		ticket, err := s.GetTicket(r.Context(), ticketID, tenantID)
		if err != nil {
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}
		response.JSON(w, ticket)
	}
}

// NewUpdateTicketHandler returns an http.HandlerFunc for PATCH /api/v1/tickets/{ticketID}.
// Only fields whose value actually changes are recorded in the audit trail.
func NewUpdateTicketHandler(s TicketStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		ticketID, ok := pathUUID(w, r, "ticketID", "INVALID_TICKET_ID")
		if !ok {
			return
		}
		actorType, ok := actorType(w, r)
		if !ok {
			return
		}

		var req updateTicketRequest
		if !decode(w, r, &req) {
			return
		}
		changes := models.TicketChanges{
			Status:       req.Status,
			Priority:     req.Priority,
			AssignedTeam: req.AssignedTeam,
		}
		if changes.Empty() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"at least one of status, priority, assigned_team is required", nil)
			return
		}

		ticket, err := s.UpdateTicket(r.Context(), store.UpdateTicketParams{
			TenantID:  tenantID,
			TicketID:  ticketID,
			Changes:   changes,
			ActorType: actorType,
			Actor:     mw.Actor(r),
		})
		if err != nil {
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}
		response.JSON(w, ticket)
	}
}
