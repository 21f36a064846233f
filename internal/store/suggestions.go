package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

const suggestionColumns = `id, tenant_id, ticket_id, job_run_id, status, suggested_priority, suggested_team,
	draft_reply, classification, confidence, citations, metadata, created_at, updated_at`

func scanSuggestion(row pgx.Row) (*models.Suggestion, error) {
	var sg models.Suggestion
	err := row.Scan(&sg.ID, &sg.TenantID, &sg.TicketID, &sg.JobRunID, &sg.Status,
		&sg.SuggestedPriority, &sg.SuggestedTeam, &sg.DraftReply, &sg.Classification,
		&sg.Confidence, &sg.Citations, &sg.Metadata, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sg.Citations == nil {
		sg.Citations = []models.Citation{}
	}
	return &sg, nil
}

// insertSuggestion inserts sg unless the job already has one, in which case it
// returns false and leaves sg untouched.
func insertSuggestion(ctx context.Context, q querier, sg *models.Suggestion) (bool, error) {
	if sg.Citations == nil {
		sg.Citations = []models.Citation{}
	}
	if sg.Metadata == nil {
		sg.Metadata = map[string]any{}
	}
	err := q.QueryRow(ctx,
		`INSERT INTO suggestions (id, tenant_id, ticket_id, job_run_id, status, suggested_priority,
		                          suggested_team, draft_reply, classification, confidence, citations, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (job_run_id) DO NOTHING
		 RETURNING created_at, updated_at`,
		sg.ID, sg.TenantID, sg.TicketID, sg.JobRunID, sg.Status, sg.SuggestedPriority,
		sg.SuggestedTeam, sg.DraftReply, sg.Classification, sg.Confidence, sg.Citations, sg.Metadata,
	).Scan(&sg.CreatedAt, &sg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func getSuggestionByJob(ctx context.Context, q querier, jobID, tenantID uuid.UUID, forUpdate bool) (*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE job_run_id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sg, err := scanSuggestion(q.QueryRow(ctx, query, jobID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get suggestion", err)
	}
	return sg, nil
}

func (s *PostgresStore) GetSuggestionByJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) (*models.Suggestion, error) {
	return getSuggestionByJob(ctx, s.pool, jobID, tenantID, false)
}

// ListSuggestions returns a ticket's suggestions newest first.
func (s *PostgresStore) ListSuggestions(ctx context.Context, ticketID uuid.UUID, tenantID uuid.UUID) ([]*models.Suggestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions
		 WHERE ticket_id = $1 AND tenant_id = $2 ORDER BY created_at DESC, id DESC`,
		ticketID, tenantID)
	if err != nil {
		return nil, wrapErr("list suggestions", err)
	}
	defer rows.Close()

	suggestions := []*models.Suggestion{}
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, rows.Err()
}

// ReviewSuggestion sets a reviewer decision (accepted or rejected). Repeating
// the current status is a no-op and reports changed=false.
func (s *PostgresStore) ReviewSuggestion(ctx context.Context, p ReviewSuggestionParams) (*models.Suggestion, bool, error) {
	var eventType string
	switch p.Status {
	case models.SuggestionStatusAccepted:
		eventType = models.EventSuggestionApproved
	case models.SuggestionStatusRejected:
		eventType = models.EventSuggestionRejected
	default:
		return nil, false, fmt.Errorf("%w: review status %q", ErrInvalidInput, p.Status)
	}

	var (
		result  *models.Suggestion
		changed bool
	)
	err := s.inTx(ctx, "review suggestion", func(tx pgx.Tx) error {
		sg, err := scanSuggestion(tx.QueryRow(ctx,
			`SELECT `+suggestionColumns+` FROM suggestions
			 WHERE id = $1 AND ticket_id = $2 AND tenant_id = $3 FOR UPDATE`,
			p.SuggestionID, p.TicketID, p.TenantID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		result = sg
		if sg.Status == p.Status {
			return nil
		}

		from := sg.Status
		err = tx.QueryRow(ctx,
			`UPDATE suggestions SET status = $3, updated_at = NOW()
			 WHERE id = $1 AND tenant_id = $2
			 RETURNING updated_at`,
			sg.ID, sg.TenantID, p.Status,
		).Scan(&sg.UpdatedAt)
		if err != nil {
			return err
		}
		sg.Status = p.Status
		changed = true

		_, err = insertEvent(ctx, tx, &models.TicketEvent{
			TenantID:  sg.TenantID,
			TicketID:  sg.TicketID,
			EventType: eventType,
			ActorType: p.ActorType,
			Actor:     p.Actor,
			Payload: map[string]any{
				"suggestion_id": sg.ID,
				"from_status":   from,
				"to_status":     sg.Status,
			},
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}
