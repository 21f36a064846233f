package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// insertEvent appends an audit event. It returns false when a job-scoped event
// with the same (ticket, event type, job run) already exists.
func insertEvent(ctx context.Context, q querier, e *models.TicketEvent) (bool, error) {
	if !models.ValidActorType(e.ActorType) {
		return false, fmt.Errorf("%w: actor type %q", ErrInvalidInput, e.ActorType)
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	err := q.QueryRow(ctx,
		`INSERT INTO ticket_events (tenant_id, ticket_id, job_run_id, event_type, actor_type, actor, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (ticket_id, event_type, job_run_id) WHERE job_run_id IS NOT NULL DO NOTHING
		 RETURNING id, created_at`,
		e.TenantID, e.TicketID, e.JobRunID, e.EventType, e.ActorType, e.Actor, payload,
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.Payload = payload
	return true, nil
}

// RecordEvent appends an audit event for a ticket of the event's tenant.
func (s *PostgresStore) RecordEvent(ctx context.Context, event *models.TicketEvent) (bool, error) {
	var inserted bool
	err := s.inTx(ctx, "record event", func(tx pgx.Tx) error {
		if _, err := getTicket(ctx, tx, event.TicketID, event.TenantID, false); err != nil {
			return err
		}
		ok, err := insertEvent(ctx, tx, event)
		inserted = ok
		return err
	})
	return inserted, err
}

// ListEvents returns a ticket's events newest first, with the total count.
func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.TicketEvent, int, error) {
	conditions := []string{"tenant_id = $1", "ticket_id = $2"}
	args := []any{filter.TenantID, filter.TicketID}
	argIdx := 3

	if filter.EventType != "" {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.ActorType != "" {
		conditions = append(conditions, fmt.Sprintf("actor_type = $%d", argIdx))
		args = append(args, filter.ActorType)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, filter.Until)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ticket_events WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr("count ticket events", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)

	dataQuery := fmt.Sprintf(
		`SELECT id, tenant_id, ticket_id, job_run_id, event_type, actor_type, actor, payload, created_at
		 FROM ticket_events WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, wrapErr("list ticket events", err)
	}
	defer rows.Close()

	events := []*models.TicketEvent{}
	for rows.Next() {
		var e models.TicketEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TicketID, &e.JobRunID, &e.EventType,
			&e.ActorType, &e.Actor, &e.Payload, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan ticket event: %w", err)
		}
		events = append(events, &e)
	}
	return events, total, rows.Err()
}

// normalizePage clamps limit to [1, 100] (default 20) and converts a 1-based page to an offset.
func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
