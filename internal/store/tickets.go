package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

const ticketColumns = `id, tenant_id, requester_email, subject, body, status, priority, assigned_team, created_at, updated_at`

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.TenantID, &t.RequesterEmail, &t.Subject, &t.Body,
		&t.Status, &t.Priority, &t.AssignedTeam, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTicket inserts a ticket and its created event in one transaction.
// Empty status and priority default to open and medium.
func (s *PostgresStore) CreateTicket(ctx context.Context, ticket *models.Ticket, actorType string, actor *string) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusOpen
	}
	if ticket.Priority == "" {
		ticket.Priority = models.PriorityMedium
	}
	if !models.ValidTicketStatus(ticket.Status) || !models.ValidPriority(ticket.Priority) {
		return fmt.Errorf("%w: status %q priority %q", ErrInvalidInput, ticket.Status, ticket.Priority)
	}

	return s.inTx(ctx, "create ticket", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO tickets (id, tenant_id, requester_email, subject, body, status, priority, assigned_team)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING created_at, updated_at`,
			ticket.ID, ticket.TenantID, ticket.RequesterEmail, ticket.Subject, ticket.Body,
			ticket.Status, ticket.Priority, ticket.AssignedTeam,
		).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
		if err != nil {
			return err
		}

		_, err = insertEvent(ctx, tx, &models.TicketEvent{
			TenantID:  ticket.TenantID,
			TicketID:  ticket.ID,
			EventType: models.EventCreated,
			ActorType: actorType,
			Actor:     actor,
			Payload: map[string]any{
				"status":        ticket.Status,
				"priority":      ticket.Priority,
				"assigned_team": ticket.AssignedTeam,
			},
		})
		return err
	})
}

func (s *PostgresStore) GetTicket(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Ticket, error) {
	return getTicket(ctx, s.pool, id, tenantID, false)
}

func getTicket(ctx context.Context, q querier, id, tenantID uuid.UUID, forUpdate bool) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTicket(q.QueryRow(ctx, query, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get ticket", err)
	}
	return t, nil
}

// UpdateTicket applies field changes under a row lock and records one
// *_changed event per field that actually changed.
func (s *PostgresStore) UpdateTicket(ctx context.Context, params UpdateTicketParams) (*models.Ticket, error) {
	var updated *models.Ticket
	err := s.inTx(ctx, "update ticket", func(tx pgx.Tx) error {
		t, err := updateTicketTx(ctx, tx, params, nil)
		if err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type fieldChange struct {
	eventType string
	from, to  string
}

// updateTicketTx is the only path that mutates ticket fields. jobRunID scopes
// the emitted events to a job so that retried orchestration cannot duplicate them.
func updateTicketTx(ctx context.Context, tx pgx.Tx, p UpdateTicketParams, jobRunID *uuid.UUID) (*models.Ticket, error) {
	c := p.Changes
	if c.Status != nil && !models.ValidTicketStatus(*c.Status) {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, *c.Status)
	}
	if c.Priority != nil && !models.ValidPriority(*c.Priority) {
		return nil, fmt.Errorf("%w: priority %q", ErrInvalidInput, *c.Priority)
	}

	t, err := getTicket(ctx, tx, p.TicketID, p.TenantID, true)
	if err != nil {
		return nil, err
	}

	var changes []fieldChange
	if c.Status != nil && *c.Status != t.Status {
		changes = append(changes, fieldChange{models.EventStatusChanged, t.Status, *c.Status})
		t.Status = *c.Status
	}
	if c.Priority != nil && *c.Priority != t.Priority {
		changes = append(changes, fieldChange{models.EventPriorityChanged, t.Priority, *c.Priority})
		t.Priority = *c.Priority
	}
	if c.AssignedTeam != nil && *c.AssignedTeam != t.AssignedTeam {
		changes = append(changes, fieldChange{models.EventAssignedTeamChanged, t.AssignedTeam, *c.AssignedTeam})
		t.AssignedTeam = *c.AssignedTeam
	}
	if len(changes) == 0 {
		return t, nil
	}

	err = tx.QueryRow(ctx,
		`UPDATE tickets SET status = $3, priority = $4, assigned_team = $5, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING updated_at`,
		t.ID, t.TenantID, t.Status, t.Priority, t.AssignedTeam,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if p.SkipAudit {
		return t, nil
	}
	for _, ch := range changes {
		_, err := insertEvent(ctx, tx, &models.TicketEvent{
			TenantID:  t.TenantID,
			TicketID:  t.ID,
			JobRunID:  jobRunID,
			EventType: ch.eventType,
			ActorType: p.ActorType,
			Actor:     p.Actor,
			Payload:   map[string]any{"from": ch.from, "to": ch.to},
		})
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}
