package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	KindTriage        = "triage"
	KindEmbedDocument = "embed_document"
)

// ErrEmpty is returned by Dequeue when no task arrived within the poll timeout.
var ErrEmpty = errors.New("queue empty")

// Task is a unit of background work. Attempt counts deliveries of the same
// logical task, starting at 1.
type Task struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	TenantID   uuid.UUID `json:"tenant_id"`
	JobID      uuid.UUID `json:"job_id,omitempty"`
	DocumentID uuid.UUID `json:"document_id,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewTriageTask(tenantID, jobID uuid.UUID) Task {
	return Task{Kind: KindTriage, TenantID: tenantID, JobID: jobID, Attempt: 1}
}

func NewEmbedTask(tenantID, documentID uuid.UUID) Task {
	return Task{Kind: KindEmbedDocument, TenantID: tenantID, DocumentID: documentID, Attempt: 1}
}

// Retry returns the task for the next delivery attempt.
func (t Task) Retry() Task {
	next := t
	next.ID = uuid.Nil
	next.Attempt = t.Attempt + 1
	return next
}

// Delivery is a dequeued task. Ack must be called once the task was handled
// (including when it was re-enqueued for retry).
type Delivery struct {
	Task Task
	ack  func() error
}

// NewDelivery wraps a task with the function that acknowledges it.
func NewDelivery(task Task, ack func() error) *Delivery {
	return &Delivery{Task: task, ack: ack}
}

func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Queue moves tasks from producers (HTTP handlers, ingest) to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error
	Dequeue(ctx context.Context) (*Delivery, error)
	Close() error
}

// New builds the queue backend selected by configuration.
func New(cfg config.QueueConfig, redisClient *redis.Client) (Queue, error) {
	switch cfg.Backend {
	case "redis":
		return NewRedisQueue(redisClient, cfg.Name, cfg.PollTimeout), nil
	case "rabbitmq":
		return NewRabbitQueue(cfg.AMQPURL, cfg.Name, cfg.PollTimeout, cfg.Prefetch)
	default:
		return nil, fmt.Errorf("unsupported queue backend: %q", cfg.Backend)
	}
}

func encode(task Task) ([]byte, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Attempt < 1 {
		task.Attempt = 1
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	return json.Marshal(task)
}

func decode(raw []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	switch task.Kind {
	case KindTriage, KindEmbedDocument:
	default:
		return Task{}, fmt.Errorf("decode task: unknown kind %q", task.Kind)
	}
	return task, nil
}
