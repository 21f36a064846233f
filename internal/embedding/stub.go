package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kiranshivaraju/tickettriage/pkg/models"
	"github.com/zeebo/blake3"
)

const stubDomain = "tickettriage.stub-embedding.v1\x00"

// StubEmbedder derives vectors from a BLAKE3 XOF stream seeded by the text.
// Equal texts always map to equal vectors; blank text maps to the zero vector.
type StubEmbedder struct {
	dim int
}

// NewStubEmbedder creates a StubEmbedder producing vectors of length dim.
func NewStubEmbedder(dim int) *StubEmbedder {
	return &StubEmbedder{dim: dim}
}

func (e *StubEmbedder) Name() string   { return "stub" }
func (e *StubEmbedder) Dimension() int { return e.dim }

func (e *StubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	if strings.TrimSpace(text) == "" {
		return vec, nil
	}

	h := blake3.New()
	_, _ = h.Write([]byte(stubDomain))
	_, _ = h.Write([]byte(text))

	buf := make([]byte, 4*e.dim)
	if _, err := io.ReadFull(h.Digest(), buf); err != nil {
		return nil, fmt.Errorf("reading digest: %w", err)
	}
	for i := range vec {
		u := binary.LittleEndian.Uint32(buf[4*i:])
		vec[i] = float32(float64(u)/math.MaxUint32*2 - 1)
	}
	normalizeL2(vec)
	return vec, nil
}

func (e *StubEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
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

var _ models.Embedder = (*StubEmbedder)(nil)
