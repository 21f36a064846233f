package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidTicketStatus reports whether s is a known ticket status.
func ValidTicketStatus(s string) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known ticket priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is a customer-reported issue. Tickets are never deleted by the triage core.
type Ticket struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	TenantID       uuid.UUID `db:"tenant_id"       json:"tenant_id"`
	RequesterEmail string    `db:"requester_email" json:"requester_email"`
	Subject        string    `db:"subject"         json:"subject"`
	Body           string    `db:"body"            json:"body"`
	Status         string    `db:"status"          json:"status"`
	Priority       string    `db:"priority"        json:"priority"`
	AssignedTeam   string    `db:"assigned_team"   json:"assigned_team"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// TicketChanges lists the ticket fields a caller wants to change. Nil means unchanged.
type TicketChanges struct {
	Status       *string
	Priority     *string
	AssignedTeam *string
}

// Empty reports whether no field is set.
func (c TicketChanges) Empty() bool {
	return c.Status == nil && c.Priority == nil && c.AssignedTeam == nil
}
