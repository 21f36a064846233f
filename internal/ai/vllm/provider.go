package vllm

import (
	"time"

	"github.com/kiranshivaraju/tickettriage/internal/ai/openai"
	"github.com/kiranshivaraju/tickettriage/internal/config"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// Provider implements models.ChatProvider using vLLM's OpenAI-compatible server.
type Provider struct {
	*openai.Provider
}

func NewProvider(cfg config.VLLMConfig, timeout time.Duration) *Provider {
	return &Provider{Provider: openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model, timeout)}
}

var _ models.ChatProvider = (*Provider)(nil)
