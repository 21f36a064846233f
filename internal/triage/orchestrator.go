package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/kb"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// RunStore is the data layer subset used while running a job.
type RunStore interface {
	GetTicket(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Ticket, error)
	ClaimJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.JobRun, error)
	CompleteJob(ctx context.Context, params store.CompleteJobParams) (*store.CompleteJobResult, error)
	RecordJobError(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, message string) error
	FailJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, message string) (*models.JobRun, error)
	GetSuggestionByJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) (*models.Suggestion, error)
}

// Searcher retrieves knowledge-base context for a ticket.
type Searcher interface {
	Search(ctx context.Context, tenantID uuid.UUID, query string, k int) ([]models.KBResult, error)
}

type OrchestratorOptions struct {
	AutoResolveThreshold float64
	KBTopK               int
	InferenceTimeout     time.Duration
}

// Orchestrator runs one triage job end to end. It is safe to run the same job
// more than once: a job that already succeeded is reported as done without
// calling the classifier, and completion is idempotent in the store.
type Orchestrator struct {
	store      RunStore
	kb         Searcher
	classifier models.Classifier
	opts       OrchestratorOptions
}

func NewOrchestrator(s RunStore, searcher Searcher, classifier models.Classifier, opts OrchestratorOptions) *Orchestrator {
	if opts.KBTopK <= 0 {
		opts.KBTopK = 5
	}
	if opts.InferenceTimeout <= 0 {
		opts.InferenceTimeout = 60 * time.Second
	}
	return &Orchestrator{store: s, kb: searcher, classifier: classifier, opts: opts}
}

// Run claims the job, classifies its ticket and persists the result. Transient
// failures are recorded on the job and left for the caller to retry; permanent
// failures, panics included, mark the job failed.
func (o *Orchestrator) Run(ctx context.Context, tenantID, jobID uuid.UUID) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in triage run", "error", r, "job_id", jobID)
			out = o.fail(ctx, tenantID, jobID, fmt.Errorf("panic: %v", r))
		}
	}()

	job, err := o.store.ClaimJob(ctx, jobID, tenantID)
	switch {
	case errors.Is(err, store.ErrJobAlreadyDone):
		suggestion, serr := o.store.GetSuggestionByJob(ctx, jobID, tenantID)
		if serr != nil && !errors.Is(serr, store.ErrNotFound) {
			slog.Warn("loading suggestion of finished job", "job_id", jobID, "error", serr)
		}
		return Outcome{Kind: OutcomeSucceeded, Suggestion: suggestion, AlreadyDone: true}
	case errors.Is(err, store.ErrJobTerminal), errors.Is(err, store.ErrNotFound):
		return Outcome{Kind: OutcomePermanent, Err: err, AlreadyDone: true}
	case errors.Is(err, store.ErrJobInFlight):
		slog.Info("job claimed by another worker, dropping delivery", "job_id", jobID)
		return Outcome{Kind: OutcomeSkipped, Err: err}
	case err != nil:
		return o.handleFailure(ctx, tenantID, jobID, fmt.Errorf("claim job: %w", err))
	}

	ticket, err := o.store.GetTicket(ctx, job.TicketID, tenantID)
	if err != nil {
		return o.handleFailure(ctx, tenantID, jobID, fmt.Errorf("load ticket: %w", err))
	}

	results, err := o.kb.Search(ctx, tenantID, kb.TicketQuery(ticket), o.opts.KBTopK)
	if err != nil {
		return o.handleFailure(ctx, tenantID, jobID, fmt.Errorf("knowledge base search: %w", err))
	}

	classifyCtx, cancel := context.WithTimeout(ctx, o.opts.InferenceTimeout)
	cls, err := o.classifier.Classify(classifyCtx, models.ClassifyRequest{Ticket: *ticket, KBResults: results})
	cancel()
	if err != nil {
		return o.handleFailure(ctx, tenantID, jobID, fmt.Errorf("classify ticket: %w", err))
	}
	if cls.ClassifierName == "" {
		cls.ClassifierName = o.classifier.Name()
	}

	autoResolve := ShouldAutoResolve(cls, o.opts.AutoResolveThreshold)
	res, err := o.store.CompleteJob(ctx, store.CompleteJobParams{
		TenantID:    tenantID,
		JobID:       jobID,
		Suggestion:  buildSuggestion(cls, results),
		Classifier:  cls.ClassifierName,
		AutoResolve: autoResolve,
	})
	if err != nil {
		if errors.Is(err, store.ErrJobTerminal) {
			return Outcome{Kind: OutcomePermanent, Err: err, AlreadyDone: true}
		}
		return o.handleFailure(ctx, tenantID, jobID, fmt.Errorf("complete job: %w", err))
	}

	slog.Info("triage completed",
		"job_id", jobID,
		"ticket_id", ticket.ID,
		"classifier", cls.ClassifierName,
		"kb_hits", len(results),
		"auto_resolved", res.AutoResolved,
		"already_done", res.AlreadyDone,
	)
	return Outcome{
		Kind:         OutcomeSucceeded,
		Suggestion:   res.Suggestion,
		AutoResolved: res.AutoResolved,
		AlreadyDone:  res.AlreadyDone,
	}
}

func (o *Orchestrator) handleFailure(ctx context.Context, tenantID, jobID uuid.UUID, err error) Outcome {
	if Classify(err) == Transient {
		if rerr := o.store.RecordJobError(ctx, jobID, tenantID, err.Error()); rerr != nil {
			slog.Warn("failed to record job error", "job_id", jobID, "error", rerr)
		}
		slog.Warn("triage attempt failed", "job_id", jobID, "class", Transient, "error", err)
		return Outcome{Kind: OutcomeTransient, Err: err}
	}
	return o.fail(ctx, tenantID, jobID, err)
}

func (o *Orchestrator) fail(ctx context.Context, tenantID, jobID uuid.UUID, err error) Outcome {
	if _, ferr := o.store.FailJob(ctx, jobID, tenantID, err.Error()); ferr != nil {
		slog.Error("failed to mark job failed", "job_id", jobID, "error", ferr)
	}
	slog.Error("triage failed", "job_id", jobID, "class", Permanent, "error", err)
	return Outcome{Kind: OutcomePermanent, Err: err}
}

func buildSuggestion(c models.Classification, results []models.KBResult) *models.Suggestion {
	citations := make([]models.Citation, len(results))
	for i, r := range results {
		citations[i] = r.Citation()
	}

	label := c.Label
	if label == "" {
		label = c.Category
	}

	metadata := map[string]any{
		"category":   c.Category,
		"summary":    c.Summary,
		"classifier": c.ClassifierName,
	}
	if c.AutoResolve != nil {
		metadata["auto_resolve_hint"] = *c.AutoResolve
	}

	return &models.Suggestion{
		SuggestedPriority: c.Priority,
		SuggestedTeam:     c.Team,
		DraftReply:        c.DraftReply,
		Classification:    label,
		Confidence:        c.Confidence,
		Citations:         citations,
		Metadata:          metadata,
	}
}
