package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
	"github.com/kiranshivaraju/tickettriage/internal/triage"
)

// IdempotencyKeyHeader carries the caller's dedupe key for triage triggers.
const IdempotencyKeyHeader = "Idempotency-Key"

// Trigger starts triage jobs and reports their state.
type Trigger interface {
	Trigger(ctx context.Context, req triage.TriggerRequest) (triage.JobSnapshot, error)
	GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (triage.JobSnapshot, error)
}

// NewTriggerTriageHandler returns an http.HandlerFunc for
// POST /api/v1/tickets/{ticketID}/triage. A newly created job answers 202,
// a repeated key answers 200 with the existing job.
func NewTriggerTriageHandler(svc Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		ticketID, ok := pathUUID(w, r, "ticketID", "INVALID_TICKET_ID")
		if !ok {
			return
		}

		snap, err := svc.Trigger(r.Context(), triage.TriggerRequest{
			TenantID:       tenantID,
			TicketID:       ticketID,
			IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
			TriggeredBy:    mw.Actor(r),
		})
		if err != nil {
			if errors.Is(err, triage.ErrInvalidIdempotencyKey) {
				response.Error(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY",
					"Idempotency-Key header is required and must be at most 80 characters", nil)
				return
			}
			writeError(w, r, err, "TICKET_NOT_FOUND")
			return
		}

		if snap.Created {
			response.Accepted(w, snap)
			return
		}
		response.JSON(w, snap)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		jobID, ok := pathUUID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}

		snap, err := svc.GetJob(r.Context(), tenantID, jobID)
		if err != nil {
			writeError(w, r, err, "JOB_NOT_FOUND")
			return
		}
		response.JSON(w, snap)
	}
}
