package triage_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/queue"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// fakeStore keeps tickets, jobs, suggestions and events in memory and follows
// the job state machine of the Postgres store.
type fakeStore struct {
	mu          sync.Mutex
	tickets     map[uuid.UUID]*models.Ticket
	jobs        map[uuid.UUID]*models.JobRun
	suggestions map[uuid.UUID]*models.Suggestion
	events      []*models.TicketEvent

	triggerErr  error
	claimErr    error
	completeErr error
	completes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tickets:     map[uuid.UUID]*models.Ticket{},
		jobs:        map[uuid.UUID]*models.JobRun{},
		suggestions: map[uuid.UUID]*models.Suggestion{},
	}
}

func (s *fakeStore) addTicket(tenantID uuid.UUID, subject, body string) *models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.Ticket{
		ID:             uuid.New(),
		TenantID:       tenantID,
		RequesterEmail: "customer@example.com",
		Subject:        subject,
		Body:           body,
		Status:         models.TicketStatusOpen,
		Priority:       models.PriorityMedium,
	}
	s.tickets[t.ID] = t
	return t
}

func (s *fakeStore) addJob(tenantID, ticketID uuid.UUID) *models.JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &models.JobRun{
		ID:             uuid.New(),
		TenantID:       tenantID,
		TicketID:       ticketID,
		IdempotencyKey: uuid.NewString(),
		Status:         models.JobStatusQueued,
	}
	s.jobs[j.ID] = j
	return j
}

func (s *fakeStore) job(id uuid.UUID) models.JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeStore) ticket(id uuid.UUID) models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tickets[id]
}

func (s *fakeStore) eventsOfType(eventType string) []*models.TicketEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TicketEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) GetTicket(_ context.Context, id, tenantID uuid.UUID) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) TriggerJob(_ context.Context, p store.TriggerJobParams) (*models.JobRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggerErr != nil {
		return nil, false, s.triggerErr
	}
	t, ok := s.tickets[p.TicketID]
	if !ok || t.TenantID != p.TenantID {
		return nil, false, store.ErrNotFound
	}
	for _, j := range s.jobs {
		if j.TicketID == p.TicketID && j.IdempotencyKey == p.IdempotencyKey {
			cp := *j
			return &cp, false, nil
		}
	}
	j := &models.JobRun{
		ID:             uuid.New(),
		TenantID:       p.TenantID,
		TicketID:       p.TicketID,
		IdempotencyKey: p.IdempotencyKey,
		Status:         models.JobStatusQueued,
		TriggeredBy:    p.TriggeredBy,
		CreatedAt:      time.Now(),
	}
	s.jobs[j.ID] = j
	cp := *j
	return &cp, true, nil
}

func (s *fakeStore) GetJob(_ context.Context, id, tenantID uuid.UUID) (*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) ClaimJob(_ context.Context, id, tenantID uuid.UUID) (*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	j, ok := s.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	switch j.Status {
	case models.JobStatusSucceeded:
		return nil, store.ErrJobAlreadyDone
	case models.JobStatusFailed:
		return nil, store.ErrJobTerminal
	case models.JobStatusRunning:
		return nil, store.ErrJobInFlight
	}
	now := time.Now()
	j.Status = models.JobStatusRunning
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.Error = ""
	j.Attempts++
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (s *fakeStore) CompleteJob(_ context.Context, p store.CompleteJobParams) (*store.CompleteJobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes++
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	j, ok := s.jobs[p.JobID]
	if !ok || j.TenantID != p.TenantID {
		return nil, store.ErrNotFound
	}
	switch j.Status {
	case models.JobStatusFailed:
		return nil, store.ErrJobTerminal
	case models.JobStatusSucceeded:
		return &store.CompleteJobResult{Job: j, Suggestion: s.suggestions[j.ID], AlreadyDone: true}, nil
	}

	sug := *p.Suggestion
	sug.ID = uuid.New()
	sug.TenantID = j.TenantID
	sug.TicketID = j.TicketID
	sug.JobRunID = j.ID
	sug.Status = models.SuggestionStatusPending
	s.suggestions[j.ID] = &sug

	s.event(j, models.EventAITriageRan, nil, map[string]any{"classifier": p.Classifier, "kb_hits": len(sug.Citations)})
	s.event(j, models.EventAISuggestionCreated, nil, map[string]any{"suggestion_id": sug.ID})

	res := &store.CompleteJobResult{Suggestion: &sug}
	if p.AutoResolve {
		actor := p.Classifier
		t := s.tickets[j.TicketID]
		if t.Status != models.TicketStatusResolved {
			s.event(j, models.EventStatusChanged, &actor, map[string]any{"from": t.Status, "to": models.TicketStatusResolved})
			t.Status = models.TicketStatusResolved
		}
		if models.ValidPriority(sug.SuggestedPriority) && t.Priority != sug.SuggestedPriority {
			s.event(j, models.EventPriorityChanged, &actor, map[string]any{"from": t.Priority, "to": sug.SuggestedPriority})
			t.Priority = sug.SuggestedPriority
		}
		if sug.SuggestedTeam != "" && t.AssignedTeam != sug.SuggestedTeam {
			s.event(j, models.EventAssignedTeamChanged, &actor, map[string]any{"from": t.AssignedTeam, "to": sug.SuggestedTeam})
			t.AssignedTeam = sug.SuggestedTeam
		}
		sug.Status = models.SuggestionStatusAccepted
		s.event(j, models.EventAutoResolutionApplied, &actor, map[string]any{
			"suggestion_id": sug.ID,
			"confidence":    sug.Confidence,
			"citations":     sug.Citations,
		})
		res.AutoResolved = true
	}

	j.Status = models.JobStatusSucceeded
	j.Error = ""
	now := time.Now()
	j.FinishedAt = &now
	res.Job = j
	return res, nil
}

// event appends a job-scoped event unless one of the same type exists.
func (s *fakeStore) event(j *models.JobRun, eventType string, actor *string, payload map[string]any) {
	for _, e := range s.events {
		if e.TicketID == j.TicketID && e.EventType == eventType && e.JobRunID != nil && *e.JobRunID == j.ID {
			return
		}
	}
	jobID := j.ID
	s.events = append(s.events, &models.TicketEvent{
		ID:        uuid.New(),
		TenantID:  j.TenantID,
		TicketID:  j.TicketID,
		JobRunID:  &jobID,
		EventType: eventType,
		ActorType: models.ActorAI,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
}

func (s *fakeStore) RecordJobError(_ context.Context, id, tenantID uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.TenantID != tenantID {
		return store.ErrNotFound
	}
	if j.Terminal() {
		return store.ErrJobTerminal
	}
	j.Status = models.JobStatusQueued
	j.Error = message
	j.UpdatedAt = time.Now()
	return nil
}

// backdate moves a job's last transition into the past.
func (s *fakeStore) backdate(id uuid.UUID, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].UpdatedAt = time.Now().Add(-d)
}

func (s *fakeStore) RequeueStaleJobs(_ context.Context, staleAfter time.Duration, limit int) ([]*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	var out []*models.JobRun
	for _, j := range s.jobs {
		if len(out) == limit {
			break
		}
		if j.Status != models.JobStatusRunning || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		j.Status = models.JobStatusQueued
		j.Error = store.StaleJobError
		j.UpdatedAt = time.Now()
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) FailJob(_ context.Context, id, tenantID uuid.UUID, message string) (*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	switch j.Status {
	case models.JobStatusSucceeded:
		return nil, store.ErrJobAlreadyDone
	case models.JobStatusFailed:
		cp := *j
		return &cp, nil
	}
	j.Status = models.JobStatusFailed
	j.Error = message
	now := time.Now()
	j.FinishedAt = &now
	cp := *j
	return &cp, nil
}

func (s *fakeStore) GetSuggestionByJob(_ context.Context, jobID, tenantID uuid.UUID) (*models.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestions[jobID]
	if !ok || sg.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return sg, nil
}

// fakeSearcher returns fixed results and records the queries it saw.
type fakeSearcher struct {
	mu      sync.Mutex
	results []models.KBResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, _ uuid.UUID, query string, k int) ([]models.KBResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

// fakeQueue is an in-memory queue.Queue that records delayed enqueues.
type fakeQueue struct {
	mu         sync.Mutex
	ready      []queue.Task
	delayed    []delayedTask
	acked      int
	enqueueErr error
}

type delayedTask struct {
	task  queue.Task
	delay time.Duration
}

func (q *fakeQueue) Enqueue(_ context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.ready = append(q.ready, task)
	return nil
}

func (q *fakeQueue) EnqueueAfter(_ context.Context, task queue.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.delayed = append(q.delayed, delayedTask{task: task, delay: delay})
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	q.mu.Lock()
	if len(q.ready) > 0 {
		task := q.ready[0]
		q.ready = q.ready[1:]
		q.mu.Unlock()
		return queue.NewDelivery(task, func() error {
			q.mu.Lock()
			q.acked++
			q.mu.Unlock()
			return nil
		}), nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, queue.ErrEmpty
	}
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) snapshot() (ready []queue.Task, delayed []delayedTask, acked int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Task(nil), q.ready...), append([]delayedTask(nil), q.delayed...), q.acked
}

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }
