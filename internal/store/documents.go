package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/pgvector/pgvector-go"
)

// CreateDocument inserts a document and its chunks in one transaction.
// Chunks are stored without embeddings.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	return s.inTx(ctx, "create document", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO documents (id, tenant_id, title, text, uploaded_by, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			doc.ID, doc.TenantID, doc.Title, doc.Text, doc.UploadedBy, doc.Metadata,
		).Scan(&doc.CreatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, c := range chunks {
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
			c.TenantID = doc.TenantID
			c.DocumentID = doc.ID
			batch.Queue(
				`INSERT INTO document_chunks (id, tenant_id, document_id, chunk_index, text, char_start, char_end)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING created_at`,
				c.ID, c.TenantID, c.DocumentID, c.ChunkIndex, c.Text, c.CharStart, c.CharEnd,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&c.CreatedAt)
			})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		doc.ChunkCount = len(chunks)
		return nil
	})
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := s.pool.QueryRow(ctx,
		`SELECT d.id, d.tenant_id, d.title, d.text, d.uploaded_by, d.metadata, d.created_at,
		        (SELECT COUNT(*) FROM document_chunks c WHERE c.document_id = d.id)
		 FROM documents d WHERE d.id = $1 AND d.tenant_id = $2`, id, tenantID,
	).Scan(&d.ID, &d.TenantID, &d.Title, &d.Text, &d.UploadedBy, &d.Metadata, &d.CreatedAt, &d.ChunkCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get document", err)
	}
	return &d, nil
}

// ListDocumentChunks returns a document's chunks in index order without vectors.
func (s *PostgresStore) ListDocumentChunks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID) ([]*models.DocumentChunk, error) {
	return s.queryChunks(ctx, "list document chunks",
		`SELECT id, tenant_id, document_id, chunk_index, text, char_start, char_end,
		        embedding IS NOT NULL, created_at
		 FROM document_chunks
		 WHERE document_id = $1 AND tenant_id = $2
		 ORDER BY chunk_index`, documentID, tenantID)
}

// ListUnembeddedChunks returns up to limit chunks of a document that still lack an embedding.
func (s *PostgresStore) ListUnembeddedChunks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID, limit int) ([]*models.DocumentChunk, error) {
	if limit <= 0 {
		limit = 32
	}
	return s.queryChunks(ctx, "list unembedded chunks",
		`SELECT id, tenant_id, document_id, chunk_index, text, char_start, char_end,
		        FALSE, created_at
		 FROM document_chunks
		 WHERE document_id = $1 AND tenant_id = $2 AND embedding IS NULL
		 ORDER BY chunk_index
		 LIMIT $3`, documentID, tenantID, limit)
}

func (s *PostgresStore) queryChunks(ctx context.Context, op, query string, args ...any) ([]*models.DocumentChunk, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	chunks := []*models.DocumentChunk{}
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.ChunkIndex, &c.Text,
			&c.CharStart, &c.CharEnd, &c.Embedded, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// SetChunkEmbeddings stores vectors for chunks of the tenant. Unknown or
// foreign chunk ids are ignored.
func (s *PostgresStore) SetChunkEmbeddings(ctx context.Context, tenantID uuid.UUID, embeddings []ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range embeddings {
		batch.Queue(
			`UPDATE document_chunks SET embedding = $3 WHERE id = $1 AND tenant_id = $2`,
			e.ChunkID, tenantID, pgvector.NewVector(e.Embedding))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return wrapErr("set chunk embeddings", err)
	}
	return nil
}

const maxCosineDistance = 2

// SearchChunks ranks the tenant's embedded chunks by cosine distance to query,
// closest first, ties broken by chunk id.
func (s *PostgresStore) SearchChunks(ctx context.Context, tenantID uuid.UUID, query []float32, k int) ([]models.KBResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.document_id, d.title, c.id, c.chunk_index, c.text, c.embedding <=> $2 AS distance
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id AND d.tenant_id = c.tenant_id
		 WHERE c.tenant_id = $1 AND c.embedding IS NOT NULL
		 ORDER BY distance, c.id
		 LIMIT $3`,
		tenantID, pgvector.NewVector(query), ClampK(k))
	if err != nil {
		return nil, wrapErr("search chunks", err)
	}
	defer rows.Close()

	results := []models.KBResult{}
	for rows.Next() {
		var r models.KBResult
		if err := rows.Scan(&r.DocumentID, &r.DocumentTitle, &r.ChunkID, &r.ChunkIndex, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		// pgvector yields NaN for a zero vector and sorts it last.
		if math.IsNaN(r.Score) {
			r.Score = maxCosineDistance
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
