// Package chunker splits extracted page text into bounded-size passages.
package chunker

import (
	"strings"

	"github.com/documind/documind/internal/extract"
)

// DefaultChunkSize is the window size in characters.
const DefaultChunkSize = 1000

// Chunk is a bounded slice of one page's text, the unit of embedding and
// retrieval. Chunks never span page boundaries.
type Chunk struct {
	DocumentID string
	Page       int // 1-based page number
	Index      int // window ordinal within the page
	Text       string
}

// Chunker produces fixed-size character windows with no overlap. The window
// restarts at every page boundary. Splitting is a pure function of its
// input: identical page text always yields identical chunks, which is what
// makes re-ingestion of identical bytes idempotent.
type Chunker struct {
	size int
}

// New creates a chunker with the given window size in characters.
// Non-positive sizes fall back to DefaultChunkSize.
func New(size int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Chunker{size: size}
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Split chunks every page of a document. Pages that are empty or
// whitespace-only contribute no chunks.
func (c *Chunker) Split(documentID string, pages []extract.Page) []Chunk {
	var chunks []Chunk
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		// Windows count characters, not bytes, so multi-byte text is
		// never cut mid-rune.
		text := []rune(p.Text)
		for i := 0; i < len(text); i += c.size {
			end := i + c.size
			if end > len(text) {
				end = len(text)
			}
			chunks = append(chunks, Chunk{
				DocumentID: documentID,
				Page:       p.Number,
				Index:      i / c.size,
				Text:       string(text[i:end]),
			})
		}
	}
	return chunks
}
