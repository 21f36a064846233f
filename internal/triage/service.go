package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/queue"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// JobStore is the job-run subset of the data layer used to trigger and inspect jobs.
type JobStore interface {
	TriggerJob(ctx context.Context, params store.TriggerJobParams) (*models.JobRun, bool, error)
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.JobRun, error)
}

// Enqueuer hands tasks to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// JobSnapshot is the client-facing view of a job run.
type JobSnapshot struct {
	JobID      uuid.UUID  `json:"job_id"`
	TicketID   uuid.UUID  `json:"ticket_id"`
	Status     string     `json:"status"`
	Created    bool       `json:"created"`
	Attempts   int        `json:"attempts"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Error      string     `json:"error"`
}

// Snapshot builds a JobSnapshot from a job run.
func Snapshot(job *models.JobRun, created bool) JobSnapshot {
	return JobSnapshot{
		JobID:      job.ID,
		TicketID:   job.TicketID,
		Status:     job.Status,
		Created:    created,
		Attempts:   job.Attempts,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		Error:      job.Error,
	}
}

type TriggerRequest struct {
	TenantID       uuid.UUID
	TicketID       uuid.UUID
	IdempotencyKey string
	TriggeredBy    *string
}

// Service is the request-path side of triage: it records job runs and
// dispatches them without waiting for classification.
type Service struct {
	store JobStore
	tasks Enqueuer
}

func NewService(s JobStore, tasks Enqueuer) *Service {
	return &Service{store: s, tasks: tasks}
}

// Trigger gets or creates the job run for (ticket, idempotency key) and
// enqueues it when it has not started yet. A failed enqueue is logged only:
// the job stays queued and unstarted, so repeating the request dispatches it.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (JobSnapshot, error) {
	key, err := ValidateIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return JobSnapshot{}, err
	}

	job, created, err := s.store.TriggerJob(ctx, store.TriggerJobParams{
		TenantID:       req.TenantID,
		TicketID:       req.TicketID,
		IdempotencyKey: key,
		TriggeredBy:    req.TriggeredBy,
	})
	if err != nil {
		return JobSnapshot{}, fmt.Errorf("trigger job: %w", err)
	}

	if ShouldDispatch(job, created) {
		if err := s.tasks.Enqueue(ctx, queue.NewTriageTask(job.TenantID, job.ID)); err != nil {
			slog.Error("failed to enqueue triage job",
				"job_id", job.ID, "ticket_id", job.TicketID, "error", err)
		}
	}

	slog.Info("triage triggered", "job_id", job.ID, "ticket_id", job.TicketID, "created", created, "status", job.Status)
	return Snapshot(job, created), nil
}

// GetJob returns the current snapshot of a job run.
func (s *Service) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (JobSnapshot, error) {
	job, err := s.store.GetJob(ctx, jobID, tenantID)
	if err != nil {
		return JobSnapshot{}, err
	}
	return Snapshot(job, false), nil
}
