package cache

import (
	"fmt"
)

func EmbeddingKey(embedder string, dim int, textHash string) string {
	return fmt.Sprintf("embedding:%s:%d:%s", embedder, dim, textHash)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
