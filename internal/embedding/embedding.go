// Package embedding maps text to fixed-dimension vectors for knowledge-base search.
package embedding

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
)

// ErrEmbeddingUnavailable is returned when an embedding backend cannot be reached
// or fails to answer. Callers treat it as transient.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// ErrEmbeddingRejected is returned when the backend refuses the request itself,
// such as an unknown model. Retrying will not help.
var ErrEmbeddingRejected = errors.New("embedding request rejected")

// statusError maps a non-200 backend response. Rate limiting and server errors
// are retryable.
func statusError(status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: status %d", ErrEmbeddingUnavailable, status)
	}
	return fmt.Errorf("%w: status %d", ErrEmbeddingRejected, status)
}

var warnedDims sync.Map

// Fit pads vec with zeros or truncates it to exactly dim values. The first time a
// given source dimension is seen a warning is logged with both dimensions.
func Fit(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	if _, seen := warnedDims.LoadOrStore(len(vec), struct{}{}); !seen {
		slog.Warn("embedding dimension mismatch, fitting vector",
			"source_dim", len(vec), "target_dim", dim)
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}

// normalizeL2 scales vec in place to unit length. A zero vector is left as is.
func normalizeL2(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
}
