package ai_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tickettriage/internal/ai"
	"github.com/kiranshivaraju/tickettriage/internal/ai/mock"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refundRequest() models.ClassifyRequest {
	return models.ClassifyRequest{
		Ticket: models.Ticket{Subject: "Refund", Body: "I want a refund for my last invoice"},
		KBResults: []models.KBResult{{
			DocumentID:    uuid.New(),
			DocumentTitle: "Refund policy",
			ChunkID:       uuid.New(),
			Text:          "Refunds allowed within 14 days",
		}},
	}
}

func TestLLM_ParsesJSONWrappedInProse(t *testing.T) {
	reply := "Sure! Here is the triage:\n```json\n" +
		`{"category":"billing","priority":"URGENT","team":"billing","draft_reply":"<b>Hi</b>, refunds are allowed within 14 days.","confidence":0.9,"auto_resolve":true}` +
		"\n```"
	c := ai.NewLLMClassifier(mock.NewMockProvider(reply), 0.2)

	out, err := c.Classify(context.Background(), refundRequest())
	require.NoError(t, err)

	assert.Equal(t, "billing", out.Category)
	assert.Equal(t, "billing", out.Team)
	assert.Equal(t, models.PriorityUrgent, out.Priority)
	assert.Equal(t, "Hi, refunds are allowed within 14 days.", out.DraftReply)
	require.NotNil(t, out.Confidence)
	assert.InDelta(t, 0.9, *out.Confidence, 1e-9)
	require.NotNil(t, out.AutoResolve)
	assert.True(t, *out.AutoResolve)
	assert.Equal(t, "Refund", out.Summary)
	assert.Equal(t, "mock", out.ClassifierName)
}

func TestLLM_Defaults(t *testing.T) {
	c := ai.NewLLMClassifier(mock.NewMockProvider(`{"priority":"critical"}`), 0.2)

	out, err := c.Classify(context.Background(), refundRequest())
	require.NoError(t, err)
	assert.Equal(t, "general", out.Category)
	assert.Equal(t, "support", out.Team)
	assert.Equal(t, models.PriorityMedium, out.Priority)
	assert.Nil(t, out.Confidence)
	assert.Nil(t, out.AutoResolve)
}

func TestLLM_ConfidenceClampedAndStringsAccepted(t *testing.T) {
	c := ai.NewLLMClassifier(mock.NewMockProvider(`{"confidence":"1.7","auto_resolve":"yes"}`), 0.2)

	out, err := c.Classify(context.Background(), refundRequest())
	require.NoError(t, err)
	require.NotNil(t, out.Confidence)
	assert.InDelta(t, 1.0, *out.Confidence, 1e-9)
	require.NotNil(t, out.AutoResolve)
	assert.True(t, *out.AutoResolve)
}

func TestLLM_NonFiniteConfidenceIsDropped(t *testing.T) {
	for _, raw := range []string{`"NaN"`, `"nan"`, `"Inf"`, `"-Inf"`, `"+inf"`} {
		c := ai.NewLLMClassifier(mock.NewMockProvider(`{"category":"billing","confidence":`+raw+`}`), 0.2)

		out, err := c.Classify(context.Background(), refundRequest())
		require.NoError(t, err, raw)
		assert.Nil(t, out.Confidence, raw)
		assert.Equal(t, "billing", out.Category, raw)
	}
}

func TestLLM_NoJSONIsInvalidResponse(t *testing.T) {
	c := ai.NewLLMClassifier(mock.NewMockProvider("I cannot help with that."), 0.2)

	_, err := c.Classify(context.Background(), refundRequest())
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

func TestLLM_MalformedJSONIsInvalidResponse(t *testing.T) {
	c := ai.NewLLMClassifier(mock.NewMockProvider(`{"category": billing}`), 0.2)

	_, err := c.Classify(context.Background(), refundRequest())
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

func TestLLM_ProviderErrorPassesThrough(t *testing.T) {
	p := &mock.MockProvider{
		Name_: "mock",
		CompleteFunc: func(context.Context, models.ChatRequest) (string, error) {
			return "", ai.ErrProviderUnavailable
		},
	}
	_, err := ai.NewLLMClassifier(p, 0.2).Classify(context.Background(), refundRequest())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestLLM_PromptCarriesTicketAndKB(t *testing.T) {
	var captured models.ChatRequest
	p := &mock.MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, req models.ChatRequest) (string, error) {
			captured = req
			return "{}", nil
		},
	}
	_, err := ai.NewLLMClassifier(p, 0.3).Classify(context.Background(), refundRequest())
	require.NoError(t, err)

	require.Len(t, captured.Messages, 1)
	prompt := captured.Messages[0].Content
	assert.Contains(t, prompt, "I want a refund for my last invoice")
	assert.Contains(t, prompt, "Refunds allowed within 14 days")
	assert.Contains(t, prompt, "Refund policy")
	assert.True(t, strings.Contains(captured.System, "STRICT JSON"))
	assert.InDelta(t, 0.3, captured.Temperature, 1e-9)
}

func TestLLM_PromptWithoutKB(t *testing.T) {
	var prompt string
	p := &mock.MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, req models.ChatRequest) (string, error) {
			prompt = req.Messages[0].Content
			return "{}", nil
		},
	}
	req := refundRequest()
	req.KBResults = nil
	_, err := ai.NewLLMClassifier(p, 0.2).Classify(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, prompt, "No KB context available.")
}
