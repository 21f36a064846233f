package mock

import (
	"context"

	"github.com/kiranshivaraju/tickettriage/internal/ai"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// MockProvider satisfies models.ChatProvider for testing.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.ChatRequest) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.ChatRequest) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// NewMockProvider returns a MockProvider that always answers with reply.
func NewMockProvider(reply string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, _ models.ChatRequest) (string, error) {
			return reply, nil
		},
	}
}

// MockClassifier satisfies models.Classifier for testing.
type MockClassifier struct {
	Name_        string
	ClassifyFunc func(ctx context.Context, req models.ClassifyRequest) (models.Classification, error)
}

func (m *MockClassifier) Name() string { return m.Name_ }

func (m *MockClassifier) Classify(ctx context.Context, req models.ClassifyRequest) (models.Classification, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	return models.Classification{}, nil
}

// NewMockClassifier returns a MockClassifier answering with a fixed decision.
func NewMockClassifier(team, priority string, confidence float64, autoResolve bool) *MockClassifier {
	return &MockClassifier{
		Name_: "mock",
		ClassifyFunc: func(_ context.Context, req models.ClassifyRequest) (models.Classification, error) {
			c := confidence
			a := autoResolve
			return models.Classification{
				Category:       "mock",
				Label:          "mock",
				Team:           team,
				Priority:       priority,
				DraftReply:     "Mock draft reply for " + req.Ticket.Subject,
				Confidence:     &c,
				AutoResolve:    &a,
				Summary:        req.Ticket.Subject,
				ClassifierName: "mock",
			}, nil
		},
	}
}

// NewFailingClassifier returns a MockClassifier that always returns err.
func NewFailingClassifier(err error) *MockClassifier {
	return &MockClassifier{
		Name_: "mock-failing",
		ClassifyFunc: func(_ context.Context, _ models.ClassifyRequest) (models.Classification, error) {
			return models.Classification{}, err
		},
	}
}

// NewTimeoutClassifier returns a MockClassifier that blocks until the context is done.
func NewTimeoutClassifier() *MockClassifier {
	return &MockClassifier{
		Name_: "mock-timeout",
		ClassifyFunc: func(ctx context.Context, _ models.ClassifyRequest) (models.Classification, error) {
			<-ctx.Done()
			return models.Classification{}, ai.ErrInferenceTimeout
		},
	}
}

// NewPanickingClassifier returns a MockClassifier that panics with v.
func NewPanickingClassifier(v any) *MockClassifier {
	return &MockClassifier{
		Name_: "mock-panic",
		ClassifyFunc: func(_ context.Context, _ models.ClassifyRequest) (models.Classification, error) {
			panic(v)
		},
	}
}

var (
	_ models.ChatProvider = (*MockProvider)(nil)
	_ models.Classifier   = (*MockClassifier)(nil)
)
