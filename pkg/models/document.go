package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is knowledge-base source text owned by a tenant.
type Document struct {
	ID         uuid.UUID      `db:"id"          json:"id"`
	TenantID   uuid.UUID      `db:"tenant_id"   json:"tenant_id"`
	Title      string         `db:"title"       json:"title"`
	Text       string         `db:"text"        json:"text"`
	UploadedBy *string        `db:"uploaded_by" json:"uploaded_by,omitempty"`
	Metadata   map[string]any `db:"metadata"    json:"metadata"`
	ChunkCount int            `db:"-"           json:"chunk_count"`
	CreatedAt  time.Time      `db:"created_at"  json:"created_at"`
}

// DocumentChunk is a character-range slice of a Document. Embedding is nil until
// computed; chunks without an embedding are never search candidates.
type DocumentChunk struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	TenantID   uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	DocumentID uuid.UUID `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"text"        json:"text"`
	CharStart  int       `db:"char_start"  json:"char_start"`
	CharEnd    int       `db:"char_end"    json:"char_end"`
	Embedding  []float32 `db:"embedding"   json:"-"`
	Embedded   bool      `db:"-"           json:"embedded"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// KBResult is one ranked knowledge-base retrieval hit. Score is the cosine
// distance to the query, so lower is closer.
type KBResult struct {
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	ChunkID       uuid.UUID `json:"chunk_id"`
	ChunkIndex    int       `json:"chunk_index"`
	Text          string    `json:"text"`
	Score         float64   `json:"score"`
}

// Citation converts a retrieval hit into a suggestion citation.
func (r KBResult) Citation() Citation {
	return Citation{
		DocumentID:    r.DocumentID,
		DocumentTitle: r.DocumentTitle,
		ChunkID:       r.ChunkID,
		ChunkIndex:    r.ChunkIndex,
		Score:         r.Score,
	}
}
