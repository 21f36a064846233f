package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// StaleJobError is recorded on a job the sweep took back from a lost worker.
const StaleJobError = "worker stopped while the job was running"

const jobColumns = `id, tenant_id, ticket_id, idempotency_key, status, attempts, error, triggered_by,
	started_at, finished_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.JobRun, error) {
	var j models.JobRun
	err := row.Scan(&j.ID, &j.TenantID, &j.TicketID, &j.IdempotencyKey, &j.Status, &j.Attempts,
		&j.Error, &j.TriggeredBy, &j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// TriggerJob returns the job for (ticket, idempotency key), creating it in
// queued state if it does not exist. The bool reports whether this call
// created the row. Concurrent callers converge on one row: a losing insert
// hits the unique constraint and re-reads the winner.
func (s *PostgresStore) TriggerJob(ctx context.Context, p TriggerJobParams) (*models.JobRun, bool, error) {
	if _, err := s.GetTicket(ctx, p.TicketID, p.TenantID); err != nil {
		return nil, false, err
	}

	job, err := s.findJob(ctx, p)
	if err == nil {
		return job, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	job, err = scanJob(s.pool.QueryRow(ctx,
		`INSERT INTO job_runs (id, tenant_id, ticket_id, idempotency_key, status, triggered_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+jobColumns,
		uuid.New(), p.TenantID, p.TicketID, p.IdempotencyKey, models.JobStatusQueued, p.TriggeredBy))
	if err != nil {
		if isDuplicateKeyError(err) {
			job, err = s.findJob(ctx, p)
			if err != nil {
				return nil, false, err
			}
			return job, false, nil
		}
		return nil, false, wrapErr("create job", err)
	}
	return job, true, nil
}

func (s *PostgresStore) findJob(ctx context.Context, p TriggerJobParams) (*models.JobRun, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_runs
		 WHERE tenant_id = $1 AND ticket_id = $2 AND idempotency_key = $3`,
		p.TenantID, p.TicketID, p.IdempotencyKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("find job", err)
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.JobRun, error) {
	return getJob(ctx, s.pool, id, tenantID, false)
}

func getJob(ctx context.Context, q querier, id, tenantID uuid.UUID, forUpdate bool) (*models.JobRun, error) {
	query := `SELECT ` + jobColumns + ` FROM job_runs WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	job, err := scanJob(q.QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get job", err)
	}
	return job, nil
}

// ClaimJob locks the job row and moves it from queued to running. It returns
// ErrJobInFlight for a running job, ErrJobAlreadyDone for a succeeded one and
// ErrJobTerminal for a failed one.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.JobRun, error) {
	var claimed *models.JobRun
	err := s.inTx(ctx, "claim job", func(tx pgx.Tx) error {
		job, err := getJob(ctx, tx, id, tenantID, true)
		if err != nil {
			return err
		}
		switch job.Status {
		case models.JobStatusSucceeded:
			return ErrJobAlreadyDone
		case models.JobStatusFailed:
			return ErrJobTerminal
		case models.JobStatusRunning:
			return ErrJobInFlight
		}

		claimed, err = scanJob(tx.QueryRow(ctx,
			`UPDATE job_runs
			 SET status = $3, started_at = COALESCE(started_at, NOW()), error = '',
			     attempts = attempts + 1, updated_at = NOW()
			 WHERE id = $1 AND tenant_id = $2
			 RETURNING `+jobColumns,
			id, tenantID, models.JobStatusRunning))
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteJob persists the suggestion, the triage events, the optional
// auto-resolution and the succeeded transition in a single transaction.
// Re-running it for a job that already succeeded writes nothing.
func (s *PostgresStore) CompleteJob(ctx context.Context, p CompleteJobParams) (*CompleteJobResult, error) {
	if p.Suggestion == nil {
		return nil, ErrInvalidInput
	}

	var res CompleteJobResult
	err := s.inTx(ctx, "complete job", func(tx pgx.Tx) error {
		job, err := getJob(ctx, tx, p.JobID, p.TenantID, true)
		if err != nil {
			return err
		}
		switch job.Status {
		case models.JobStatusFailed:
			return ErrJobTerminal
		case models.JobStatusSucceeded:
			res.Job = job
			res.AlreadyDone = true
			sug, err := getSuggestionByJob(ctx, tx, job.ID, job.TenantID, false)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			res.Suggestion = sug
			return nil
		}

		sug := *p.Suggestion
		sug.TenantID = job.TenantID
		sug.TicketID = job.TicketID
		sug.JobRunID = job.ID
		sug.Status = models.SuggestionStatusPending
		if sug.ID == uuid.Nil {
			sug.ID = uuid.New()
		}
		inserted, err := insertSuggestion(ctx, tx, &sug)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := getSuggestionByJob(ctx, tx, job.ID, job.TenantID, true)
			if err != nil {
				return err
			}
			sug = *existing
		}

		jobRef := &job.ID
		events := []*models.TicketEvent{
			{
				EventType: models.EventAITriageRan,
				Payload: map[string]any{
					"classifier":     p.Classifier,
					"classification": sug.Classification,
					"confidence":     sug.Confidence,
					"kb_hits":        len(sug.Citations),
				},
			},
			{
				EventType: models.EventAISuggestionCreated,
				Payload: map[string]any{
					"suggestion_id":      sug.ID,
					"suggested_priority": sug.SuggestedPriority,
					"suggested_team":     sug.SuggestedTeam,
					"confidence":         sug.Confidence,
				},
			},
		}
		for _, e := range events {
			e.TenantID = job.TenantID
			e.TicketID = job.TicketID
			e.JobRunID = jobRef
			e.ActorType = models.ActorAI
			if _, err := insertEvent(ctx, tx, e); err != nil {
				return err
			}
		}

		if p.AutoResolve && sug.Status == models.SuggestionStatusPending {
			if err := autoResolve(ctx, tx, job, &sug, p.Classifier); err != nil {
				return err
			}
			res.AutoResolved = true
		}

		done, err := scanJob(tx.QueryRow(ctx,
			`UPDATE job_runs SET status = $3, error = '', finished_at = NOW(), updated_at = NOW()
			 WHERE id = $1 AND tenant_id = $2
			 RETURNING `+jobColumns,
			job.ID, job.TenantID, models.JobStatusSucceeded))
		if err != nil {
			return err
		}
		res.Job = done
		res.Suggestion = &sug
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// autoResolve applies a suggestion to its ticket, accepts it and records the
// auto_resolution_applied event. It runs inside the CompleteJob transaction.
func autoResolve(ctx context.Context, tx pgx.Tx, job *models.JobRun, sug *models.Suggestion, classifier string) error {
	resolved := models.TicketStatusResolved
	changes := models.TicketChanges{Status: &resolved}
	if models.ValidPriority(sug.SuggestedPriority) {
		changes.Priority = &sug.SuggestedPriority
	}
	if sug.SuggestedTeam != "" {
		changes.AssignedTeam = &sug.SuggestedTeam
	}

	actor := classifier
	if _, err := updateTicketTx(ctx, tx, UpdateTicketParams{
		TenantID:  job.TenantID,
		TicketID:  job.TicketID,
		Changes:   changes,
		ActorType: models.ActorAI,
		Actor:     &actor,
	}, &job.ID); err != nil {
		return err
	}

	err := tx.QueryRow(ctx,
		`UPDATE suggestions SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING updated_at`,
		sug.ID, sug.TenantID, models.SuggestionStatusAccepted,
	).Scan(&sug.UpdatedAt)
	if err != nil {
		return err
	}
	sug.Status = models.SuggestionStatusAccepted

	_, err = insertEvent(ctx, tx, &models.TicketEvent{
		TenantID:  job.TenantID,
		TicketID:  job.TicketID,
		JobRunID:  &job.ID,
		EventType: models.EventAutoResolutionApplied,
		ActorType: models.ActorAI,
		Actor:     &actor,
		Payload: map[string]any{
			"suggestion_id": sug.ID,
			"confidence":    sug.Confidence,
			"citations":     sug.Citations,
		},
	})
	return err
}

// RecordJobError stores the latest error text on a job that is still in
// flight and hands it back to queued so the retry can claim it. started_at is
// kept, so a repeated trigger does not dispatch it a second time.
func (s *PostgresStore) RecordJobError(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_runs SET status = 'queued', error = $3, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND status IN ('queued', 'running')`,
		id, tenantID, message)
	if err != nil {
		return wrapErr("record job error", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, id, tenantID); err != nil {
			return err
		}
		return ErrJobTerminal
	}
	return nil
}

// FailJob moves an in-flight job to failed with the given error. Failing an
// already failed job returns it unchanged; a succeeded job yields ErrJobAlreadyDone.
func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, message string) (*models.JobRun, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE job_runs SET status = $3, error = $4, finished_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND status IN ('queued', 'running')
		 RETURNING `+jobColumns,
		id, tenantID, models.JobStatusFailed, message))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, wrapErr("fail job", err)
	}

	job, err = s.GetJob(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusSucceeded {
		return nil, ErrJobAlreadyDone
	}
	return job, nil
}

// RequeueStaleJobs hands running jobs whose claim is older than staleAfter
// back to queued and returns them. It serves the worker's sweep for deliveries
// lost to a crash and is the one job query that spans tenants; each returned
// job is then handled under its own tenant id.
func (s *PostgresStore) RequeueStaleJobs(ctx context.Context, staleAfter time.Duration, limit int) ([]*models.JobRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE job_runs SET status = 'queued', error = $2, updated_at = NOW()
		 WHERE id IN (
		     SELECT id FROM job_runs
		     WHERE status = 'running' AND updated_at < NOW() - make_interval(secs => $1)
		     ORDER BY updated_at
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED)
		 RETURNING `+jobColumns,
		staleAfter.Seconds(), StaleJobError, limit)
	if err != nil {
		return nil, wrapErr("requeue stale jobs", err)
	}
	defer rows.Close()

	var jobs []*models.JobRun
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, wrapErr("requeue stale jobs", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("requeue stale jobs", err)
	}
	return jobs, nil
}
