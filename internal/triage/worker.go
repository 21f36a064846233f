package triage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/queue"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Runner executes one triage job.
type Runner interface {
	Run(ctx context.Context, tenantID, jobID uuid.UUID) Outcome
}

// DocumentEmbedder attaches embeddings to a stored document's chunks.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, tenantID, documentID uuid.UUID) (int, error)
}

// JobStore marks jobs failed once their retries are exhausted and takes back
// jobs whose worker disappeared mid-run.
type JobStore interface {
	FailJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, message string) (*models.JobRun, error)
	RequeueStaleJobs(ctx context.Context, staleAfter time.Duration, limit int) ([]*models.JobRun, error)
}

const sweepBatch = 100

type WorkerOptions struct {
	Concurrency int
	// MaxRetries is the number of re-deliveries after the first attempt.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// StaleAfter is how long a job may stay running before the sweep takes it
	// back. Zero disables the sweep.
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// Worker consumes the task queue with a fixed pool of goroutines.
type Worker struct {
	queue    queue.Queue
	runner   Runner
	embedder DocumentEmbedder
	jobs     JobStore
	opts     WorkerOptions
}

func NewWorker(q queue.Queue, runner Runner, embedder DocumentEmbedder, jobs JobStore, opts WorkerOptions) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 2 * time.Second
	}
	if opts.RetryMaxDelay < opts.RetryBaseDelay {
		opts.RetryMaxDelay = opts.RetryBaseDelay
	}
	if opts.StaleAfter > 0 && opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Worker{queue: q, runner: runner, embedder: embedder, jobs: jobs, opts: opts}
}

// Run blocks until ctx is cancelled. A task already dequeued is finished
// before its goroutine exits.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker pool started", "concurrency", w.opts.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		id := i
		g.Go(func() error {
			w.loop(gctx, id)
			return nil
		})
	}
	if w.opts.StaleAfter > 0 {
		g.Go(func() error {
			w.sweepLoop(gctx)
			return nil
		})
	}
	err := g.Wait()
	slog.Info("worker pool stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, id int) {
	for ctx.Err() == nil {
		d, err := w.queue.Dequeue(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "worker", id, "error", err)
			sleep(ctx, time.Second)
			continue
		}

		w.Handle(context.WithoutCancel(ctx), d.Task)
		if err := d.Ack(); err != nil {
			slog.Warn("ack failed", "worker", id, "task_id", d.Task.ID, "error", err)
		}
	}
}

// Handle processes a single task, re-enqueueing it with backoff after a
// transient failure.
func (w *Worker) Handle(ctx context.Context, task queue.Task) {
	switch task.Kind {
	case queue.KindTriage:
		w.handleTriage(ctx, task)
	case queue.KindEmbedDocument:
		w.handleEmbed(ctx, task)
	default:
		slog.Error("unknown task kind", "kind", task.Kind, "task_id", task.ID)
	}
}

func (w *Worker) handleTriage(ctx context.Context, task queue.Task) {
	out := w.runner.Run(ctx, task.TenantID, task.JobID)
	if out.Kind != OutcomeTransient {
		return
	}

	if !w.canRetry(task) {
		slog.Error("triage retries exhausted", "job_id", task.JobID, "attempt", task.Attempt, "error", out.Err)
		w.failJob(ctx, task, out.Message())
		return
	}
	if err := w.retry(ctx, task); err != nil {
		w.failJob(ctx, task, out.Message())
	}
}

func (w *Worker) handleEmbed(ctx context.Context, task queue.Task) {
	n, err := w.embedder.EmbedDocument(ctx, task.TenantID, task.DocumentID)
	if err == nil {
		slog.Info("document embedded", "document_id", task.DocumentID, "chunks", n)
		return
	}
	if Classify(err) == Transient && w.canRetry(task) {
		slog.Warn("document embedding failed, retrying", "document_id", task.DocumentID, "attempt", task.Attempt, "error", err)
		_ = w.retry(ctx, task)
		return
	}
	slog.Error("document embedding failed", "document_id", task.DocumentID, "attempt", task.Attempt, "error", err)
}

func (w *Worker) sweepLoop(ctx context.Context) {
	t := time.NewTicker(w.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.Error("stale job sweep failed", "error", err)
			}
		}
	}
}

// Sweep takes back jobs left running by a lost worker and re-enqueues them,
// or fails them when the lost run was their last allowed attempt. It returns
// the number of jobs taken back.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	jobs, err := w.jobs.RequeueStaleJobs(ctx, w.opts.StaleAfter, sweepBatch)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		lost := queue.NewTriageTask(job.TenantID, job.ID)
		lost.Attempt = max(job.Attempts, 1)
		if !w.canRetry(lost) {
			slog.Error("stale job out of retries", "job_id", job.ID, "attempts", job.Attempts)
			w.failJob(ctx, lost, store.StaleJobError)
			continue
		}
		next := lost.Retry()
		if err := w.queue.Enqueue(ctx, next); err != nil {
			slog.Error("failed to re-enqueue stale job", "job_id", job.ID, "error", err)
			w.failJob(ctx, lost, store.StaleJobError)
			continue
		}
		slog.Warn("stale job re-enqueued", "job_id", job.ID, "attempt", next.Attempt)
	}
	return len(jobs), nil
}

func (w *Worker) canRetry(task queue.Task) bool {
	return task.Attempt <= w.opts.MaxRetries
}

func (w *Worker) retry(ctx context.Context, task queue.Task) error {
	delay := RetryDelay(w.opts.RetryBaseDelay, w.opts.RetryMaxDelay, task.Attempt)
	next := task.Retry()
	if err := w.queue.EnqueueAfter(ctx, next, delay); err != nil {
		slog.Error("failed to schedule retry", "task_kind", task.Kind, "job_id", task.JobID, "error", err)
		return err
	}
	slog.Info("retry scheduled", "task_kind", task.Kind, "job_id", task.JobID, "attempt", next.Attempt, "delay", delay)
	return nil
}

func (w *Worker) failJob(ctx context.Context, task queue.Task, message string) {
	if _, err := w.jobs.FailJob(ctx, task.JobID, task.TenantID, message); err != nil {
		slog.Error("failed to mark job failed", "job_id", task.JobID, "error", err)
	}
}

// RetryDelay is the exponential backoff before re-delivery number attempt:
// base, 2*base, 4*base and so on, capped at maxDelay.
func RetryDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
