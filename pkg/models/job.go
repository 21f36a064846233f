package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// MaxIdempotencyKeyLen bounds caller-supplied idempotency keys.
const MaxIdempotencyKeyLen = 80

// JobRun is one triage attempt for a ticket, unique per (ticket, idempotency key).
// Lifecycle: queued -> running -> succeeded | failed. Terminal states never change.
type JobRun struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	TenantID       uuid.UUID  `db:"tenant_id"       json:"tenant_id"`
	TicketID       uuid.UUID  `db:"ticket_id"       json:"ticket_id"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	Status         string     `db:"status"          json:"status"`
	Attempts       int        `db:"attempts"        json:"attempts"`
	Error          string     `db:"error"           json:"error"`
	TriggeredBy    *string    `db:"triggered_by"    json:"triggered_by,omitempty"`
	StartedAt      *time.Time `db:"started_at"      json:"started_at,omitempty"`
	FinishedAt     *time.Time `db:"finished_at"     json:"finished_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// Terminal reports whether the job has reached succeeded or failed.
func (j *JobRun) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
