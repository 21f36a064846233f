package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tickettriage/internal/api/middleware"
	"github.com/kiranshivaraju/tickettriage/internal/kb"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/internal/triage"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- mock store ---

type mockStore struct {
	mu          sync.Mutex
	tickets     map[uuid.UUID]*models.Ticket
	suggestions map[uuid.UUID]*models.Suggestion
	documents   map[uuid.UUID]*models.Document
	chunks      map[uuid.UUID][]*models.DocumentChunk
	keys        map[uuid.UUID]*models.APIKey
	events      []*models.TicketEvent

	lastCreateActor string
	lastUpdate      store.UpdateTicketParams
	lastReview      store.ReviewSuggestionParams
	lastEventFilter store.EventFilter
	err             error
}

func newMockStore() *mockStore {
	return &mockStore{
		tickets:     map[uuid.UUID]*models.Ticket{},
		suggestions: map[uuid.UUID]*models.Suggestion{},
		documents:   map[uuid.UUID]*models.Document{},
		chunks:      map[uuid.UUID][]*models.DocumentChunk{},
		keys:        map[uuid.UUID]*models.APIKey{},
	}
}

func (m *mockStore) addTicket(tenantID uuid.UUID, subject, body string) *models.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &models.Ticket{
		ID: uuid.New(), TenantID: tenantID, RequesterEmail: "a@example.com",
		Subject: subject, Body: body, Status: models.TicketStatusOpen, Priority: models.PriorityMedium,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.tickets[t.ID] = t
	return t
}

func (m *mockStore) addSuggestion(t *models.Ticket, draft string) *models.Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()
	sg := &models.Suggestion{
		ID: uuid.New(), TenantID: t.TenantID, TicketID: t.ID, JobRunID: uuid.New(),
		Status: models.SuggestionStatusPending, DraftReply: draft, Citations: []models.Citation{},
	}
	m.suggestions[sg.ID] = sg
	return sg
}

func (m *mockStore) CreateTicket(_ context.Context, t *models.Ticket, actorType string, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	t.ID = uuid.New()
	t.CreatedAt, t.UpdatedAt = time.Now(), time.Now()
	m.tickets[t.ID] = t
	m.lastCreateActor = actorType
	return nil
}

func (m *mockStore) GetTicket(_ context.Context, id, tenantID uuid.UUID) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tickets[id]
	if !ok || t.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) UpdateTicket(_ context.Context, p store.UpdateTicketParams) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUpdate = p
	t, ok := m.tickets[p.TicketID]
	if !ok || t.TenantID != p.TenantID {
		return nil, store.ErrNotFound
	}
	if p.Changes.Status != nil {
		t.Status = *p.Changes.Status
	}
	if p.Changes.Priority != nil {
		t.Priority = *p.Changes.Priority
	}
	if p.Changes.AssignedTeam != nil {
		t.AssignedTeam = *p.Changes.AssignedTeam
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) ListEvents(_ context.Context, f store.EventFilter) ([]*models.TicketEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEventFilter = f
	out := []*models.TicketEvent{}
	for _, e := range m.events {
		if e.TicketID == f.TicketID && (f.EventType == "" || e.EventType == f.EventType) {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockStore) ListSuggestions(_ context.Context, ticketID, tenantID uuid.UUID) ([]*models.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Suggestion{}
	for _, sg := range m.suggestions {
		if sg.TicketID == ticketID && sg.TenantID == tenantID {
			out = append(out, sg)
		}
	}
	return out, nil
}

func (m *mockStore) ReviewSuggestion(_ context.Context, p store.ReviewSuggestionParams) (*models.Suggestion, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReview = p
	sg, ok := m.suggestions[p.SuggestionID]
	if !ok || sg.TicketID != p.TicketID || sg.TenantID != p.TenantID {
		return nil, false, store.ErrNotFound
	}
	if sg.Status == p.Status {
		return sg, false, nil
	}
	sg.Status = p.Status
	return sg, true, nil
}

func (m *mockStore) GetDocument(_ context.Context, id, tenantID uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok || d.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (m *mockStore) ListDocumentChunks(_ context.Context, documentID, _ uuid.UUID) ([]*models.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[documentID], nil
}

func (m *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.keys[key.ID] = key
	return nil
}

func (m *mockStore) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.APIKey{}
	for _, k := range m.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) RevokeAPIKey(_ context.Context, id, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(m.keys, id)
	return nil
}

// --- mock triage service ---

type mockTrigger struct {
	triggerFn func(req triage.TriggerRequest) (triage.JobSnapshot, error)
	getFn     func(tenantID, jobID uuid.UUID) (triage.JobSnapshot, error)
}

func (m *mockTrigger) Trigger(_ context.Context, req triage.TriggerRequest) (triage.JobSnapshot, error) {
	return m.triggerFn(req)
}

func (m *mockTrigger) GetJob(_ context.Context, tenantID, jobID uuid.UUID) (triage.JobSnapshot, error) {
	return m.getFn(tenantID, jobID)
}

// --- mock knowledge base ---

type mockKB struct {
	ingestFn func(in kb.DocumentInput) (*models.Document, []*models.DocumentChunk, error)
	searchFn func(query string, k int) ([]models.KBResult, error)
	queries  []string
}

func (m *mockKB) Ingest(_ context.Context, tenantID uuid.UUID, in kb.DocumentInput) (*models.Document, []*models.DocumentChunk, error) {
	return m.ingestFn(in)
}

func (m *mockKB) Search(_ context.Context, _ uuid.UUID, query string, k int) ([]models.KBResult, error) {
	m.queries = append(m.queries, query)
	return m.searchFn(query, k)
}

// --- helpers ---

func authedRequest(t *testing.T, method, target string, body any, tenantID uuid.UUID) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	ctx := mw.SetTenantID(r.Context(), tenantID)
	ctx = mw.SetKeyName(ctx, "ci")
	return r.WithContext(ctx)
}

// serve routes the request through a chi router so URL params resolve.
func serve(pattern string, method string, h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, h)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}
