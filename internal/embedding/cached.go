package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"github.com/kiranshivaraju/tickettriage/internal/cache"
	"github.com/kiranshivaraju/tickettriage/pkg/models"
)

// CachedEmbedder memoizes another embedder's vectors in the cache. Cache errors
// are logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	next  models.Embedder
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedEmbedder wraps next with a cache layer.
func NewCachedEmbedder(next models.Embedder, c cache.Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: c, ttl: ttl}
}

func (e *CachedEmbedder) Name() string   { return e.next.Name() }
func (e *CachedEmbedder) Dimension() int { return e.next.Dimension() }

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)

	raw, found, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("embedding cache read failed", "error", err)
	}
	if found {
		if vec, ok := decodeVector(raw, e.Dimension()); ok {
			return vec, nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, encodeVector(vec), e.ttl); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (e *CachedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.EmbeddingKey(e.Name(), e.Dimension(), hex.EncodeToString(sum[:]))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte, dim int) ([]float32, bool) {
	if len(raw) != 4*dim {
		return nil, false
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, true
}

var _ models.Embedder = (*CachedEmbedder)(nil)
