package embedding

import (
	"fmt"

	"github.com/kiranshivaraju/tickettriage/internal/cache"
	"github.com/kiranshivaraju/tickettriage/internal/config"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// New constructs the embedder named by cfg.Provider. When c is non-nil and
// cfg.CacheTTL is positive the embedder is wrapped with a cache layer.
func New(cfg config.EmbeddingConfig, c cache.Cache) (models.Embedder, error) {
	var e models.Embedder
	switch cfg.Provider {
	case "stub":
		e = NewStubEmbedder(cfg.Dimension)
	case "ollama":
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimension, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: must be one of stub, ollama", cfg.Provider)
	}
	if c != nil && cfg.CacheTTL > 0 {
		return NewCachedEmbedder(e, c, cfg.CacheTTL), nil
	}
	return e, nil
}
