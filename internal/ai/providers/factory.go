// Package providers constructs classifiers and chat providers from configuration.
package providers

import (
	"fmt"

	"github.com/kiranshivaraju/tickettriage/internal/ai"
	"github.com/kiranshivaraju/tickettriage/internal/ai/anthropic"
	"github.com/kiranshivaraju/tickettriage/internal/ai/ollama"
	"github.com/kiranshivaraju/tickettriage/internal/ai/openai"
	"github.com/kiranshivaraju/tickettriage/internal/ai/vllm"
	"github.com/kiranshivaraju/tickettriage/internal/config"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// NewChatProvider constructs the chat backend named by cfg.Provider.
func NewChatProvider(cfg config.AIConfig) (models.ChatProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}

// NewClassifier constructs the triage classifier. Called once at startup.
func NewClassifier(cfg config.AIConfig) (models.Classifier, error) {
	if cfg.Provider == "rules" {
		return ai.NewRulesClassifier(), nil
	}
	p, err := NewChatProvider(cfg)
	if err != nil {
		return nil, err
	}
	return ai.NewLLMClassifier(p, cfg.Temperature), nil
}
