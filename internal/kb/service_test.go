package kb_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/embedding"
	"github.com/kiranshivaraju/tickettriage/internal/kb"
	"github.com/kiranshivaraju/tickettriage/internal/queue"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory kb.Store ranking by cosine distance.
type memStore struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*models.Document
	chunks    []*models.DocumentChunk
	createErr error
}

func newMemStore() *memStore {
	return &memStore{docs: map[uuid.UUID]*models.Document{}}
}

func (m *memStore) CreateDocument(_ context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	doc.ID = uuid.New()
	doc.ChunkCount = len(chunks)
	m.docs[doc.ID] = doc
	for _, c := range chunks {
		c.ID = uuid.New()
		c.TenantID = doc.TenantID
		c.DocumentID = doc.ID
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *memStore) ListUnembeddedChunks(_ context.Context, documentID, tenantID uuid.UUID, limit int) ([]*models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DocumentChunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID && c.TenantID == tenantID && c.Embedding == nil {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) SetChunkEmbeddings(_ context.Context, tenantID uuid.UUID, embeddings []store.ChunkEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range embeddings {
		for _, c := range m.chunks {
			if c.ID == e.ChunkID && c.TenantID == tenantID {
				c.Embedding = e.Embedding
				c.Embedded = true
			}
		}
	}
	return nil
}

func (m *memStore) SearchChunks(_ context.Context, tenantID uuid.UUID, query []float32, k int) ([]models.KBResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KBResult
	for _, c := range m.chunks {
		if c.TenantID != tenantID || c.Embedding == nil {
			continue
		}
		out = append(out, models.KBResult{
			DocumentID:    c.DocumentID,
			DocumentTitle: m.docs[c.DocumentID].Title,
			ChunkID:       c.ID,
			ChunkIndex:    c.ChunkIndex,
			Text:          c.Text,
			Score:         cosineDistance(query, c.Embedding),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].ChunkID.String() < out[j].ChunkID.String()
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

type recordingEnqueuer struct {
	tasks []queue.Task
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, task queue.Task) error {
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, task)
	return nil
}

type failingEmbedder struct{ models.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrEmbeddingUnavailable
}

func (failingEmbedder) EmbedMany(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrEmbeddingUnavailable
}

func newService(st kb.Store, tasks kb.Enqueuer) *kb.Service {
	return kb.NewService(st, embedding.NewStubEmbedder(64), tasks, kb.Options{
		ChunkSize: 40, ChunkOverlap: 10, EmbedBatchSize: 2,
	})
}

func TestIngest_RejectsEmptyDocument(t *testing.T) {
	svc := newService(newMemStore(), &recordingEnqueuer{})

	_, _, err := svc.Ingest(context.Background(), uuid.New(), kb.DocumentInput{Title: "  ", Text: "body"})
	assert.ErrorIs(t, err, kb.ErrInvalidDocument)

	_, _, err = svc.Ingest(context.Background(), uuid.New(), kb.DocumentInput{Title: "Title", Text: "\r\n \t"})
	assert.ErrorIs(t, err, kb.ErrInvalidDocument)
}

func TestIngest_ChunksAndEnqueuesEmbedding(t *testing.T) {
	st := newMemStore()
	tasks := &recordingEnqueuer{}
	svc := newService(st, tasks)
	tenant := uuid.New()

	text := strings.Repeat("Refunds are allowed within 14 days. ", 5)
	doc, chunks, err := svc.Ingest(context.Background(), tenant, kb.DocumentInput{Title: " Refunds ", Text: text + "\r\n"})
	require.NoError(t, err)

	assert.Equal(t, "Refunds", doc.Title)
	assert.Equal(t, kb.Normalize(text), doc.Text)
	assert.Equal(t, len(chunks), doc.ChunkCount)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Nil(t, c.Embedding)
	}

	require.Len(t, tasks.tasks, 1)
	assert.Equal(t, queue.KindEmbedDocument, tasks.tasks[0].Kind)
	assert.Equal(t, doc.ID, tasks.tasks[0].DocumentID)
	assert.Equal(t, tenant, tasks.tasks[0].TenantID)
}

func TestIngest_EnqueueFailureStillStoresDocument(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recordingEnqueuer{err: errors.New("redis down")})

	doc, _, err := svc.Ingest(context.Background(), uuid.New(), kb.DocumentInput{Title: "T", Text: "some text"})
	require.NoError(t, err)
	assert.Contains(t, st.docs, doc.ID)
}

func TestIngest_StoreErrorIsReturned(t *testing.T) {
	st := newMemStore()
	st.createErr = store.ErrUnavailable
	svc := newService(st, &recordingEnqueuer{})

	_, _, err := svc.Ingest(context.Background(), uuid.New(), kb.DocumentInput{Title: "T", Text: "text"})
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestEmbedDocument_EmbedsAllChunksInBatches(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recordingEnqueuer{})
	tenant := uuid.New()

	doc, chunks, err := svc.Ingest(context.Background(), tenant, kb.DocumentInput{
		Title: "Guide", Text: strings.Repeat("word ", 40),
	})
	require.NoError(t, err)

	n, err := svc.EmbedDocument(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, len(chunks), n)
	for _, c := range chunks {
		assert.Len(t, c.Embedding, 64)
	}

	n, err = svc.EmbedDocument(context.Background(), tenant, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmbedDocument_ProviderFailure(t *testing.T) {
	st := newMemStore()
	tenant := uuid.New()
	svc := kb.NewService(st, failingEmbedder{}, &recordingEnqueuer{}, kb.Options{})

	doc, _, err := svc.Ingest(context.Background(), tenant, kb.DocumentInput{Title: "T", Text: "text"})
	require.NoError(t, err)

	_, err = svc.EmbedDocument(context.Background(), tenant, doc.ID)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)
}

func TestSearch_EmptyQueryAndNoEmbeddings(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recordingEnqueuer{})
	tenant := uuid.New()

	results, err := svc.Search(context.Background(), tenant, " \r\n", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	_, _, err = svc.Ingest(context.Background(), tenant, kb.DocumentInput{Title: "T", Text: "Refunds allowed within 14 days"})
	require.NoError(t, err)

	results, err = svc.Search(context.Background(), tenant, "refund", 5)
	require.NoError(t, err)
	assert.Empty(t, results, "chunks without embeddings are never returned")
}

func TestSearch_RanksExactMatchFirstWithinTenant(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recordingEnqueuer{})
	ctx := context.Background()
	tenant, other := uuid.New(), uuid.New()

	for _, text := range []string{"Refunds allowed within 14 days", "Reset your password from the login page"} {
		doc, _, err := svc.Ingest(ctx, tenant, kb.DocumentInput{Title: "Doc", Text: text})
		require.NoError(t, err)
		_, err = svc.EmbedDocument(ctx, tenant, doc.ID)
		require.NoError(t, err)
	}
	foreign, _, err := svc.Ingest(ctx, other, kb.DocumentInput{Title: "Foreign", Text: "Refunds allowed within 14 days"})
	require.NoError(t, err)
	_, err = svc.EmbedDocument(ctx, other, foreign.ID)
	require.NoError(t, err)

	results, err := svc.Search(ctx, tenant, "  Refunds allowed within 14 days\r\n", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Refunds allowed within 14 days", results[0].Text)
	assert.InDelta(t, 0.0, results[0].Score, 1e-5)
	assert.LessOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.NotEqual(t, foreign.ID, r.DocumentID)
	}
}

func TestSearch_EmbedderUnavailable(t *testing.T) {
	svc := kb.NewService(newMemStore(), failingEmbedder{}, &recordingEnqueuer{}, kb.Options{})

	_, err := svc.Search(context.Background(), uuid.New(), "refund", 5)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)
}

func TestTicketQuery(t *testing.T) {
	assert.Equal(t, "body text", kb.TicketQuery(&models.Ticket{Subject: "subj", Body: "body text"}))
	assert.Equal(t, "subj", kb.TicketQuery(&models.Ticket{Subject: "subj", Body: "  \n"}))
}
