// Package memory provides a brute-force in-process vector.Index. It is the
// zero-infrastructure backend and the deterministic index used in tests.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/documind/documind/internal/vector"
)

// Index stores entries keyed by entry id, so upserting an existing id
// overwrites instead of duplicating. All mutation happens under one lock;
// a search never observes a half-applied upsert or delete.
type Index struct {
	mu      sync.RWMutex
	entries map[string]vector.Entry
}

func New() *Index {
	return &Index{entries: make(map[string]vector.Entry)}
}

func (i *Index) Upsert(_ context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range entries {
		i.entries[e.ID] = e
	}
	return nil
}

func (i *Index) Search(_ context.Context, vec []float32, topK int, documentIDs []string) ([]vector.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	var allowed map[string]bool
	if len(documentIDs) > 0 {
		allowed = make(map[string]bool, len(documentIDs))
		for _, id := range documentIDs {
			allowed[id] = true
		}
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	results := make([]vector.SearchResult, 0, len(i.entries))
	for _, e := range i.entries {
		if allowed != nil && !allowed[e.Metadata.DocumentID] {
			continue
		}
		results = append(results, vector.SearchResult{
			ID:       e.ID,
			Score:    cosine(vec, e.Vector),
			Text:     e.Text,
			Metadata: e.Metadata,
		})
	}

	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].ID < results[b].ID // stable order for equal scores
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (i *Index) DeleteByDocument(_ context.Context, documentID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, e := range i.entries {
		if e.Metadata.DocumentID == documentID {
			delete(i.entries, id)
		}
	}
	return nil
}

func (i *Index) ListDocuments(_ context.Context) ([]vector.DocumentRef, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	seen := make(map[string]string)
	for _, e := range i.entries {
		if _, ok := seen[e.Metadata.DocumentID]; !ok {
			seen[e.Metadata.DocumentID] = e.Metadata.DisplayName
		}
	}

	refs := make([]vector.DocumentRef, 0, len(seen))
	for id, name := range seen {
		refs = append(refs, vector.DocumentRef{DocumentID: id, DisplayName: name})
	}
	sort.Slice(refs, func(a, b int) bool { return refs[a].DocumentID < refs[b].DocumentID })
	return refs, nil
}

func (i *Index) Close() error { return nil }

// cosine computes cosine similarity without assuming unit vectors.
func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for k := 0; k < n; k++ {
		dot += float64(a[k]) * float64(b[k])
		na += float64(a[k]) * float64(a[k])
		nb += float64(b[k]) * float64(b[k])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ vector.Index = (*Index)(nil)
