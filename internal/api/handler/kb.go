package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/api/response"
	"github.com/kiranshivaraju/tickettriage/internal/kb"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

const defaultRetrieveK = 5

// KnowledgeBase ingests and searches knowledge-base documents.
type KnowledgeBase interface {
	Ingest(ctx context.Context, tenantID uuid.UUID, in kb.DocumentInput) (*models.Document, []*models.DocumentChunk, error)
	Search(ctx context.Context, tenantID uuid.UUID, query string, k int) ([]models.KBResult, error)
}

// DocumentStore reads stored documents and tickets used as retrieval queries.
type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Document, error)
	ListDocumentChunks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID) ([]*models.DocumentChunk, error)
	GetTicket(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Ticket, error)
}

type ingestDocumentRequest struct {
	Title    string         `json:"title"    validate:"required,max=255"`
	Text     string         `json:"text"     validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

type documentResponse struct {
	*models.Document
	Chunks []*models.DocumentChunk `json:"chunks"`
}

type retrieveRequest struct {
	Query    string `json:"query"     validate:"max=8192"`
	TicketID string `json:"ticket_id" validate:"omitempty,uuid"`
	K        *int   `json:"k"         validate:"omitempty,min=1,max=50"`
}

type retrieveResponse struct {
	Query   string            `json:"query"`
	K       int               `json:"k"`
	Results []models.KBResult `json:"results"`
}

// NewIngestDocumentHandler returns an http.HandlerFunc for POST /api/v1/kb/documents.
// Chunks are stored immediately; embeddings are computed in the background.
func NewIngestDocumentHandler(svc KnowledgeBase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}

		var req ingestDocumentRequest
		if !decode(w, r, &req) {
			return
		}

		doc, chunks, err := svc.Ingest(r.Context(), tenantID, kb.DocumentInput{
			Title:      req.Title,
			Text:       req.Text,
			UploadedBy: mw.Actor(r),
			Metadata:   req.Metadata,
		})
		if err != nil {
			if errors.Is(err, kb.ErrInvalidDocument) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			writeError(w, r, err, "DOCUMENT_NOT_FOUND")
			return
		}
		doc.ChunkCount = len(chunks)
		response.Created(w, documentResponse{Document: doc, Chunks: chunks})
	}
}

// NewGetDocumentHandler returns an http.HandlerFunc for
// GET /api/v1/kb/documents/{documentID}, including the document's chunks.
func NewGetDocumentHandler(s DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}
		documentID, ok := pathUUID(w, r, "documentID", "INVALID_DOCUMENT_ID")
		if !ok {
			return
		}

		doc, err := s.GetDocument(r.Context(), documentID, tenantID)
		if err != nil {
			writeError(w, r, err, "DOCUMENT_NOT_FOUND")
			return
		}
		chunks, err := s.ListDocumentChunks(r.Context(), documentID, tenantID)
		if err != nil {
			writeError(w, r, err, "DOCUMENT_NOT_FOUND")
			return
		}
		doc.ChunkCount = len(chunks)
		response.JSON(w, documentResponse{Document: doc, Chunks: chunks})
	}
}

// NewRetrieveHandler returns an http.HandlerFunc for POST /api/v1/kb/retrieve.
// Exactly one of query or ticket_id is required; a ticket is searched by its
// subject and body.
func NewRetrieveHandler(svc KnowledgeBase, s DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenant(w, r)
		if !ok {
			return
		}

		var req retrieveRequest
		if !decode(w, r, &req) {
			return
		}
		hasQuery := strings.TrimSpace(req.Query) != ""
		if hasQuery == (req.TicketID != "") {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"exactly one of query or ticket_id is required", nil)
			return
		}

		k := defaultRetrieveK
		if req.K != nil {
			k = *req.K
		}

		query := req.Query
		if !hasQuery {
			ticket, err := s.GetTicket(r.Context(), uuid.MustParse(req.TicketID), tenantID)
			if err != nil {
				writeError(w, r, err, "TICKET_NOT_FOUND")
				return
			}
			query = ticketQuery(ticket)
		}

		results, err := svc.Search(r.Context(), tenantID, query, k)
		if err != nil {
			writeError(w, r, err, "DOCUMENT_NOT_FOUND")
			return
		}
		response.JSON(w, retrieveResponse{Query: query, K: k, Results: results})
	}
}

// ticketQuery is the ad hoc retrieval query for a ticket. Triage itself
// searches with kb.TicketQuery.
func ticketQuery(t *models.Ticket) string {
	return strings.TrimSpace(t.Subject + "\n\n" + t.Body)
}
