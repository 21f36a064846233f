package kb

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Chunk is a contiguous slice of normalized document text. Start and End are
// rune offsets, End exclusive.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Normalize converts CRLF and lone CR line endings to LF and trims outer whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// ChunkText normalizes text and splits it into overlapping windows of size runes.
// Consecutive windows start step = size-overlap runes apart. An overlap at or
// above size is reduced to size-1. Windows containing only whitespace are
// skipped, and the window that reaches the end of the text is the last one.
func ChunkText(text string, size, overlap int) []Chunk {
	runes := []rune(Normalize(text))
	n := len(runes)
	if n == 0 {
		return []Chunk{}
	}

	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = max(0, size-1)
	}
	step := max(1, size-overlap)

	chunks := make([]Chunk, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := min(n, start+size)
		window := runes[start:end]
		if !blank(window) {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  string(window),
				Start: start,
				End:   end,
			})
		}
		if end >= n {
			break
		}
	}
	return chunks
}

func blank(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
