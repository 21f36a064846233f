package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventCreated               = "created"
	EventStatusChanged         = "status_changed"
	EventPriorityChanged       = "priority_changed"
	EventAssignedTeamChanged   = "assigned_team_changed"
	EventCommentAdded          = "comment_added"
	EventAITriageRan           = "ai_triage_ran"
	EventAISuggestionCreated   = "ai_suggestion_created"
	EventAutoResolutionApplied = "auto_resolution_applied"
	EventSuggestionApproved    = "suggestion_approved"
	EventSuggestionRejected    = "suggestion_rejected"
)

const (
	ActorUser    = "user"
	ActorSystem  = "system"
	ActorAI      = "ai"
	ActorWebhook = "webhook"
)

// ValidActorType reports whether a is a known actor type.
func ValidActorType(a string) bool {
	switch a {
	case ActorUser, ActorSystem, ActorAI, ActorWebhook:
		return true
	}
	return false
}

// TicketEvent is an append-only audit record. For a non-nil JobRunID at most one
// event exists per (ticket, event type, job run).
type TicketEvent struct {
	ID        uuid.UUID      `db:"id"         json:"id"`
	TenantID  uuid.UUID      `db:"tenant_id"  json:"tenant_id"`
	TicketID  uuid.UUID      `db:"ticket_id"  json:"ticket_id"`
	JobRunID  *uuid.UUID     `db:"job_run_id" json:"job_run_id,omitempty"`
	EventType string         `db:"event_type" json:"event_type"`
	ActorType string         `db:"actor_type" json:"actor_type"`
	Actor     *string        `db:"actor"      json:"actor,omitempty"`
	Payload   map[string]any `db:"payload"    json:"payload"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
