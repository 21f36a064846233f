package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/tickettriage/internal/ai"
	"github.com/kiranshivaraju/tickettriage/internal/ai/ollama"
	"github.com/kiranshivaraju/tickettriage/internal/config"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatRequest() models.ChatRequest {
	return models.ChatRequest{
		System:      "respond with JSON",
		Messages:    []models.ChatMessage{{Role: "user", Content: "triage this"}},
		Temperature: 0.2,
	}
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Model    string               `json:"model"`
			Messages []models.ChatMessage `json:"messages"`
			Stream   bool                 `json:"stream"`
			Options  struct {
				Temperature float64 `json:"temperature"`
			} `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body.Model)
		assert.False(t, body.Stream)
		assert.InDelta(t, 0.2, body.Options.Temperature, 1e-9)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"category":"billing"}`},
		})
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, 5*time.Second)
	out, err := p.Complete(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"category":"billing"}`, out)
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, 5*time.Second)
	_, err := p.Complete(context.Background(), chatRequest())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestComplete_MissingContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message":{}}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, 5*time.Second)
	_, err := p.Complete(context.Background(), chatRequest())
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, chatRequest())
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

func TestComplete_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: url, Model: "llama3"}, time.Second)
	_, err := p.Complete(context.Background(), chatRequest())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}
