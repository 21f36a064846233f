package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SuggestionStatusPending  = "pending"
	SuggestionStatusAccepted = "accepted"
	SuggestionStatusRejected = "rejected"
)

// Citation references a knowledge-base chunk that informed a suggestion.
type Citation struct {
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	ChunkID       uuid.UUID `json:"chunk_id"`
	ChunkIndex    int       `json:"chunk_index"`
	Score         float64   `json:"score"`
}

// Suggestion is the classifier output for exactly one JobRun.
type Suggestion struct {
	ID                uuid.UUID      `db:"id"                 json:"id"`
	TenantID          uuid.UUID      `db:"tenant_id"          json:"tenant_id"`
	TicketID          uuid.UUID      `db:"ticket_id"          json:"ticket_id"`
	JobRunID          uuid.UUID      `db:"job_run_id"         json:"job_run_id"`
	Status            string         `db:"status"             json:"status"`
	SuggestedPriority string         `db:"suggested_priority" json:"suggested_priority"`
	SuggestedTeam     string         `db:"suggested_team"     json:"suggested_team"`
	DraftReply        string         `db:"draft_reply"        json:"draft_reply"`
	Classification    string         `db:"classification"     json:"classification"`
	Confidence        *float64       `db:"confidence"         json:"confidence"`
	Citations         []Citation     `db:"citations"          json:"citations"`
	Metadata          map[string]any `db:"metadata"           json:"metadata"`
	CreatedAt         time.Time      `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"         json:"updated_at"`
}
