package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable marks transient database failures (connection loss,
	// serialization conflicts, deadlocks). Callers may retry.
	ErrUnavailable = errors.New("store unavailable")
	// ErrJobAlreadyDone is returned when claiming a job that already succeeded.
	ErrJobAlreadyDone = errors.New("job already succeeded")
	// ErrJobTerminal is returned when claiming or completing a failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrJobInFlight is returned when claiming a job another worker is running.
	ErrJobInFlight = errors.New("job is already running")
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateTicket(ctx context.Context, ticket *models.Ticket, actorType string, actor *string) error
	GetTicket(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, params UpdateTicketParams) (*models.Ticket, error)

	TriggerJob(ctx context.Context, params TriggerJobParams) (*models.JobRun, bool, error)
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.JobRun, error)
	ClaimJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.JobRun, error)
	CompleteJob(ctx context.Context, params CompleteJobParams) (*CompleteJobResult, error)
	RecordJobError(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, message string) error
	FailJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, message string) (*models.JobRun, error)
	RequeueStaleJobs(ctx context.Context, staleAfter time.Duration, limit int) ([]*models.JobRun, error)

	RecordEvent(ctx context.Context, event *models.TicketEvent) (bool, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*models.TicketEvent, int, error)

	ListSuggestions(ctx context.Context, ticketID uuid.UUID, tenantID uuid.UUID) ([]*models.Suggestion, error)
	GetSuggestionByJob(ctx context.Context, jobID uuid.UUID, tenantID uuid.UUID) (*models.Suggestion, error)
	ReviewSuggestion(ctx context.Context, params ReviewSuggestionParams) (*models.Suggestion, bool, error)

	CreateDocument(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error
	GetDocument(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Document, error)
	ListDocumentChunks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID) ([]*models.DocumentChunk, error)
	ListUnembeddedChunks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID, limit int) ([]*models.DocumentChunk, error)
	SetChunkEmbeddings(ctx context.Context, tenantID uuid.UUID, embeddings []ChunkEmbedding) error
	SearchChunks(ctx context.Context, tenantID uuid.UUID, query []float32, k int) ([]models.KBResult, error)
}

// UpdateTicketParams describes a ticket field mutation. Every field that
// actually changes produces a *_changed event unless SkipAudit is set.
type UpdateTicketParams struct {
	TenantID  uuid.UUID
	TicketID  uuid.UUID
	Changes   models.TicketChanges
	ActorType string
	Actor     *string
	SkipAudit bool
}

type TriggerJobParams struct {
	TenantID       uuid.UUID
	TicketID       uuid.UUID
	IdempotencyKey string
	TriggeredBy    *string
}

// CompleteJobParams carries the classifier result persisted by CompleteJob.
// AutoResolve is decided by the caller; the store only applies it.
type CompleteJobParams struct {
	TenantID    uuid.UUID
	JobID       uuid.UUID
	Suggestion  *models.Suggestion
	Classifier  string
	AutoResolve bool
}

type CompleteJobResult struct {
	Job          *models.JobRun
	Suggestion   *models.Suggestion
	AutoResolved bool
	// AlreadyDone is set when the job had already succeeded and nothing was written.
	AlreadyDone bool
}

type ReviewSuggestionParams struct {
	TenantID     uuid.UUID
	TicketID     uuid.UUID
	SuggestionID uuid.UUID
	Status       string
	ActorType    string
	Actor        *string
}

type EventFilter struct {
	TenantID  uuid.UUID
	TicketID  uuid.UUID
	EventType string
	ActorType string
	Since     time.Time
	Until     time.Time
	Page      int
	Limit     int
}

type ChunkEmbedding struct {
	ChunkID   uuid.UUID
	Embedding []float32
}

// MaxSearchK bounds the number of chunks a similarity search returns.
const MaxSearchK = 50

// ClampK limits k to [1, MaxSearchK].
func ClampK(k int) int {
	if k < 1 {
		return 1
	}
	if k > MaxSearchK {
		return MaxSearchK
	}
	return k
}
