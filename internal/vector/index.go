// Package vector defines the index contract shared by all vector storage
// backends: embeddings plus chunk text and provenance metadata, searched by
// cosine similarity.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Metadata is the provenance carried by every index entry.
type Metadata struct {
	DocumentID  string
	DisplayName string
	Page        int // 1-based
	ChunkIndex  int // window ordinal within the page
}

// Entry is a chunk's embedding plus its text and metadata, as stored in the
// index. The entry lifetime is tied to the owning document: deleting the
// document removes every entry carrying its id.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// SearchResult is a single match from a similarity search. Score is cosine
// similarity: higher is more similar. Results are always returned in
// descending score order.
type SearchResult struct {
	ID       string
	Score    float32
	Text     string
	Metadata Metadata
}

// DocumentRef identifies a document currently represented in the index.
type DocumentRef struct {
	DocumentID  string
	DisplayName string
}

// Index provides vector storage and cosine similarity search.
type Index interface {
	// Upsert inserts or updates entries in one atomic call. Empty input is
	// a no-op. Entries with ids already present are overwritten, never
	// duplicated.
	Upsert(ctx context.Context, entries []Entry) error
	// Search returns at most topK entries ranked by descending cosine
	// similarity. A non-empty documentIDs filter is a hard constraint:
	// only entries belonging to those documents are eligible. An empty
	// index or an unmatched filter yields an empty slice, not an error.
	Search(ctx context.Context, vector []float32, topK int, documentIDs []string) ([]SearchResult, error)
	// DeleteByDocument removes every entry owned by the document.
	// Deleting an unknown document id is a no-op.
	DeleteByDocument(ctx context.Context, documentID string) error
	// ListDocuments returns the distinct documents represented by at least
	// one entry, each id exactly once.
	ListDocuments(ctx context.Context) ([]DocumentRef, error)
	// Close releases resources.
	Close() error
}

// ChunkKey renders the human-inspectable chunk identifier for a document
// page window: {documentId}_p{page}_c{index}.
func ChunkKey(documentID string, page, chunkIndex int) string {
	return fmt.Sprintf("%s_p%d_c%d", documentID, page, chunkIndex)
}

// EntryID derives the deterministic index entry id for a chunk. The id is a
// UUID-shaped digest of the chunk key so re-ingesting identical content
// upserts the same point instead of duplicating it. Qdrant accepts only UUID
// or integer point ids, hence the formatting.
func EntryID(documentID string, page, chunkIndex int) string {
	sum := sha256.Sum256([]byte(ChunkKey(documentID, page, chunkIndex)))

	var b [16]byte
	copy(b[:], sum[:16])
	b[6] = (b[6] & 0x0f) | 0x50 // version 5 (name-based)
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10

	var out [36]byte
	hex.Encode(out[0:8], b[0:4])
	out[8] = '-'
	hex.Encode(out[9:13], b[4:6])
	out[13] = '-'
	hex.Encode(out[14:18], b[6:8])
	out[18] = '-'
	hex.Encode(out[19:23], b[8:10])
	out[23] = '-'
	hex.Encode(out[24:36], b[10:16])
	return string(out[:])
}
