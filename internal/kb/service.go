package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/queue"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// ErrInvalidDocument is returned when a document has no title or no text.
var ErrInvalidDocument = errors.New("document title and text are required")

// Store is the subset of the data layer the knowledge base needs.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error
	ListUnembeddedChunks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID, limit int) ([]*models.DocumentChunk, error)
	SetChunkEmbeddings(ctx context.Context, tenantID uuid.UUID, embeddings []store.ChunkEmbedding) error
	SearchChunks(ctx context.Context, tenantID uuid.UUID, query []float32, k int) ([]models.KBResult, error)
}

// Enqueuer hands background work to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
}

// Service ingests documents, attaches embeddings in the background and
// answers similarity queries.
type Service struct {
	store    Store
	embedder models.Embedder
	tasks    Enqueuer
	opts     Options
}

func NewService(s Store, embedder models.Embedder, tasks Enqueuer, opts Options) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 32
	}
	return &Service{store: s, embedder: embedder, tasks: tasks, opts: opts}
}

type DocumentInput struct {
	Title      string
	Text       string
	UploadedBy *string
	Metadata   map[string]any
}

// Ingest normalizes and chunks a document, stores it with its chunks and
// requests embeddings asynchronously. A failed enqueue is logged, not
// returned: the document is stored and EmbedDocument can be run later.
func (s *Service) Ingest(ctx context.Context, tenantID uuid.UUID, in DocumentInput) (*models.Document, []*models.DocumentChunk, error) {
	title := strings.TrimSpace(in.Title)
	text := Normalize(in.Text)
	if title == "" || text == "" {
		return nil, nil, ErrInvalidDocument
	}

	pieces := ChunkText(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	chunks := make([]*models.DocumentChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &models.DocumentChunk{
			ChunkIndex: p.Index,
			Text:       p.Text,
			CharStart:  p.Start,
			CharEnd:    p.End,
		}
	}

	doc := &models.Document{
		TenantID:   tenantID,
		Title:      title,
		Text:       text,
		UploadedBy: in.UploadedBy,
		Metadata:   in.Metadata,
	}
	if err := s.store.CreateDocument(ctx, doc, chunks); err != nil {
		return nil, nil, fmt.Errorf("store document: %w", err)
	}

	if len(chunks) > 0 {
		if err := s.tasks.Enqueue(ctx, queue.NewEmbedTask(tenantID, doc.ID)); err != nil {
			slog.Error("failed to enqueue document embedding",
				"document_id", doc.ID, "tenant_id", tenantID, "error", err)
		}
	}

	slog.Info("document ingested", "document_id", doc.ID, "tenant_id", tenantID, "chunks", len(chunks))
	return doc, chunks, nil
}

// EmbedDocument embeds every chunk of the document that has no vector yet,
// in batches. Re-running it after a partial failure resumes where it stopped.
func (s *Service) EmbedDocument(ctx context.Context, tenantID, documentID uuid.UUID) (int, error) {
	embedded := 0
	seen := map[uuid.UUID]bool{}
	for {
		chunks, err := s.store.ListUnembeddedChunks(ctx, documentID, tenantID, s.opts.EmbedBatchSize)
		if err != nil {
			return embedded, fmt.Errorf("list unembedded chunks: %w", err)
		}
		if len(chunks) == 0 {
			return embedded, nil
		}
		if seen[chunks[0].ID] {
			return embedded, fmt.Errorf("embed chunks: chunk %s still unembedded after update", chunks[0].ID)
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return embedded, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return embedded, fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vectors), len(chunks))
		}

		batch := make([]store.ChunkEmbedding, len(chunks))
		for i, c := range chunks {
			batch[i] = store.ChunkEmbedding{ChunkID: c.ID, Embedding: vectors[i]}
			seen[c.ID] = true
		}
		if err := s.store.SetChunkEmbeddings(ctx, tenantID, batch); err != nil {
			return embedded, fmt.Errorf("store embeddings: %w", err)
		}
		embedded += len(batch)

		if len(chunks) < s.opts.EmbedBatchSize {
			return embedded, nil
		}
	}
}

// Search returns up to k chunks closest to query by cosine distance. An empty
// query or a knowledge base without embedded chunks yields no results.
func (s *Service) Search(ctx context.Context, tenantID uuid.UUID, query string, k int) ([]models.KBResult, error) {
	query = Normalize(query)
	if query == "" {
		return []models.KBResult{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.SearchChunks(ctx, tenantID, vec, store.ClampK(k))
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return results, nil
}

// TicketQuery builds the retrieval query for a ticket: body, or subject when
// the body is blank.
func TicketQuery(t *models.Ticket) string {
	if strings.TrimSpace(t.Body) != "" {
		return t.Body
	}
	return t.Subject
}
