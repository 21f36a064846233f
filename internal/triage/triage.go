// Package triage dispatches triage jobs and runs them: retrieve knowledge-base
// context, classify the ticket, persist the suggestion and apply
// auto-resolution when the classifier is confident enough.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/tickettriage/internal/ai"
	"github.com/kiranshivaraju/tickettriage/internal/embedding"
	"github.com/kiranshivaraju/tickettriage/internal/store"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// ErrInvalidIdempotencyKey is returned for a blank or oversized idempotency key.
var ErrInvalidIdempotencyKey = fmt.Errorf("idempotency key must be 1-%d characters", models.MaxIdempotencyKeyLen)

// ValidateIdempotencyKey trims key and checks its length in characters,
// matching the VARCHAR bound on job_runs.idempotency_key.
func ValidateIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || utf8.RuneCountInString(key) > models.MaxIdempotencyKeyLen {
		return "", ErrInvalidIdempotencyKey
	}
	return key, nil
}

// ShouldDispatch reports whether a triggered job needs a task on the queue: it
// was just created, or an earlier dispatch never got it started.
func ShouldDispatch(job *models.JobRun, created bool) bool {
	if created {
		return true
	}
	return job.Status == models.JobStatusQueued && job.StartedAt == nil
}

// ShouldAutoResolve reports whether the classifier asked for auto-resolution
// with a confidence at or above threshold. A missing confidence never qualifies.
func ShouldAutoResolve(c models.Classification, threshold float64) bool {
	if c.AutoResolve == nil || !*c.AutoResolve {
		return false
	}
	return c.Confidence != nil && *c.Confidence >= threshold
}

// ErrorClass separates failures worth retrying from those that are not.
type ErrorClass int

const (
	Permanent ErrorClass = iota
	Transient
)

func (c ErrorClass) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// Classify maps an error from a triage step to its retry class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return Permanent
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ai.ErrInferenceTimeout),
		errors.Is(err, ai.ErrProviderUnavailable),
		errors.Is(err, embedding.ErrEmbeddingUnavailable),
		errors.Is(err, store.ErrUnavailable):
		return Transient
	default:
		return Permanent
	}
}

// OutcomeKind tags the result of one orchestrator run.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeTransient
	OutcomePermanent
	// OutcomeSkipped means another worker holds the job; the delivery is dropped.
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeTransient:
		return "transient"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "permanent"
	}
}

// Outcome is what Orchestrator.Run reports to the worker.
type Outcome struct {
	Kind         OutcomeKind
	Err          error
	Suggestion   *models.Suggestion
	AutoResolved bool
	// AlreadyDone is set when the job had reached a terminal state before this run.
	AlreadyDone bool
}

// Message is the error text recorded on the job, empty on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
