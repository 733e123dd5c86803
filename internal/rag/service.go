// Package rag composes the document store, page extraction, chunking, the
// embedding and generation providers, and the vector index into the ingest
// and query operations of the retrieval pipeline.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/documind/documind/internal/chunker"
	"github.com/documind/documind/internal/extract"
	"github.com/documind/documind/internal/llm"
	"github.com/documind/documind/internal/observability"
	"github.com/documind/documind/internal/store"
	"github.com/documind/documind/internal/vector"
)

// DefaultTopK is the number of entries retrieved per query when the caller
// does not say otherwise.
const DefaultTopK = 5

// Answer-generation defaults; deployments override them via
// Service.SetAnswerParams. Summary calls always use the fixed values.
const (
	defaultAnswerTemperature = 0.7
	defaultAnswerMaxTokens   = 1000
)

var (
	summaryTemperature = 0.5
	summaryMaxTokens   = 200
)

// IngestSummary reports what an ingest produced.
type IngestSummary struct {
	DocumentID  string
	DisplayName string
	Pages       int
	Chunks      int
	Summary     string // best-effort, empty when generation failed
}

// Source is a deduplicated (document, page) citation.
type Source struct {
	DisplayName string
	Page        int
	DocumentID  string
}

// Answer is the result of a query: generated text plus the citations behind
// it.
type Answer struct {
	Text        string
	Sources     []Source
	ContextUsed int
}

// QueryOptions tunes a single query. The zero value means top-5, no document
// filter, no history.
type QueryOptions struct {
	TopK        int
	DocumentIDs []string
	History     []llm.Message
}

// Service is the retrieval orchestrator. It owns neither store: the document
// store holds the bytes, the index holds the entries, and the service keeps
// the two consistent across ingest and delete.
type Service struct {
	store     *store.Store
	extractor extract.Extractor
	chunker   *chunker.Chunker
	index     vector.Index
	embedder  llm.Provider
	generator llm.Provider
	log       *slog.Logger

	answerTemperature float64
	answerMaxTokens   int
}

// NewService wires the orchestrator. Embedder and generator may be the same
// provider instance.
func NewService(st *store.Store, ex extract.Extractor, ch *chunker.Chunker, idx vector.Index, embedder, generator llm.Provider, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     st,
		extractor: ex,
		chunker:   ch,
		index:     idx,
		embedder:  embedder,
		generator: generator,
		log:       log,

		answerTemperature: defaultAnswerTemperature,
		answerMaxTokens:   defaultAnswerMaxTokens,
	}
}

// SetAnswerParams overrides the answer-generation sampling parameters.
// Non-positive values keep the current settings.
func (s *Service) SetAnswerParams(temperature float64, maxTokens int) {
	if temperature > 0 {
		s.answerTemperature = temperature
	}
	if maxTokens > 0 {
		s.answerMaxTokens = maxTokens
	}
}

// Ingest persists the raw bytes, extracts and chunks the text, embeds every
// chunk, and upserts all entries in a single index call. The upsert is the
// only index write and happens once, after all chunks embedded, so a failure
// anywhere earlier leaves no partial index state. Ingesting identical bytes
// is idempotent: same document id, same entry ids, no duplicates.
func (s *Service) Ingest(ctx context.Context, content []byte, displayName string) (*IngestSummary, error) {
	ctx, span := observability.StartIngestSpan(ctx, displayName, len(content))
	defer span.End()

	id, err := s.store.Save(content)
	if err != nil {
		observability.RecordError(span, err)
		s.log.Error("store document", "document_id", id, "name", displayName, "error", err)
		return nil, fmt.Errorf("store document: %w", err)
	}

	pages, err := s.extractor.Extract(ctx, content)
	if err != nil {
		observability.RecordError(span, err)
		s.log.Error("extract pages", "document_id", id, "name", displayName, "error", err)
		return nil, fmt.Errorf("extract document %s: %w", id, err)
	}

	chunks := s.chunker.Split(id, pages)

	entries, err := s.embedChunks(ctx, displayName, chunks)
	if err != nil {
		observability.RecordError(span, err)
		s.log.Error("embed chunks", "document_id", id, "chunks", len(chunks), "error", err)
		return nil, fmt.Errorf("embed document %s: %w", id, err)
	}

	idxCtx, idxSpan := observability.StartIndexSpan(ctx, "upsert", len(entries))
	err = s.index.Upsert(idxCtx, entries)
	observability.RecordError(idxSpan, err)
	idxSpan.End()
	if err != nil {
		observability.RecordError(span, err)
		s.log.Error("index chunks", "document_id", id, "chunks", len(entries), "error", err)
		return nil, fmt.Errorf("index document %s: %w", id, err)
	}

	summary := s.summarize(ctx, id, displayName, chunks)

	observability.RecordIngestResult(span, id, len(pages), len(chunks))
	s.log.Info("document ingested", "document_id", id, "name", displayName, "pages", len(pages), "chunks", len(chunks))

	return &IngestSummary{
		DocumentID:  id,
		DisplayName: displayName,
		Pages:       len(pages),
		Chunks:      len(chunks),
		Summary:     summary,
	}, nil
}

// embedChunks batch-embeds chunk texts and pairs them with deterministic
// entry ids. Any embedding failure aborts the whole batch.
func (s *Service) embedChunks(ctx context.Context, displayName string, chunks []chunker.Chunk) ([]vector.Entry, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	llmCtx, llmSpan := observability.StartLLMSpan(ctx, s.embedder.Name(), "embed")
	start := time.Now()
	vectors, err := s.embedder.Embed(llmCtx, texts)
	observability.RecordError(llmSpan, err)
	observability.RecordLLMMetrics(llmSpan, 0, 0, time.Since(start))
	llmSpan.End()
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	entries := make([]vector.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vector.Entry{
			ID:     vector.EntryID(c.DocumentID, c.Page, c.Index),
			Vector: vectors[i],
			Text:   c.Text,
			Metadata: vector.Metadata{
				DocumentID:  c.DocumentID,
				DisplayName: displayName,
				Page:        c.Page,
				ChunkIndex:  c.Index,
			},
		}
	}
	return entries, nil
}

// summarize asks the generator for a short document summary. Best-effort:
// failures degrade to an empty summary, never abort the ingest.
func (s *Service) summarize(ctx context.Context, documentID, displayName string, chunks []chunker.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	n := len(chunks)
	if n > summaryChunks {
		n = summaryChunks
	}
	texts := make([]string, n)
	for i := 0; i < n; i++ {
		texts[i] = chunks[i].Text
	}

	llmCtx, llmSpan := observability.StartLLMSpan(ctx, s.generator.Name(), "summarize")
	defer llmSpan.End()

	start := time.Now()
	resp, err := s.generator.Complete(llmCtx, summaryPrompt(displayName, texts), &llm.RequestOptions{
		Temperature: &summaryTemperature,
		MaxTokens:   &summaryMaxTokens,
	})
	if err != nil {
		observability.RecordError(llmSpan, err)
		s.log.Warn("summary generation failed", "document_id", documentID, "error", err)
		return ""
	}
	observability.RecordLLMMetrics(llmSpan, resp.InputTokens, resp.OutputTokens, time.Since(start))

	return llm.StripThinkingTags(resp.Content)
}

// Query embeds the question, retrieves the top-K most similar chunks
// (optionally restricted to a set of documents), and generates an answer
// conditioned on them. Generation failure never fails the query: the fixed
// fallback answer is substituted and the retrieved sources still returned.
func (s *Service) Query(ctx context.Context, question string, opts *QueryOptions) (*Answer, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, span := observability.StartQuerySpan(ctx, topK, len(opts.DocumentIDs))
	defer span.End()

	llmCtx, llmSpan := observability.StartLLMSpan(ctx, s.embedder.Name(), "embed")
	vectors, err := s.embedder.Embed(llmCtx, []string{question})
	observability.RecordError(llmSpan, err)
	llmSpan.End()
	if err != nil {
		observability.RecordError(span, err)
		s.log.Error("embed query", "error", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		err := fmt.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
		observability.RecordError(span, err)
		return nil, err
	}

	idxCtx, idxSpan := observability.StartIndexSpan(ctx, "search", topK)
	results, err := s.index.Search(idxCtx, vectors[0], topK, opts.DocumentIDs)
	observability.RecordError(idxSpan, err)
	idxSpan.End()
	if err != nil {
		observability.RecordError(span, err)
		s.log.Error("search index", "top_k", topK, "error", err)
		return nil, fmt.Errorf("search index: %w", err)
	}

	text, generated := s.generate(ctx, question, results, opts.History)
	sources := dedupeSources(results)

	observability.RecordQueryResult(span, len(results), len(sources), generated)
	return &Answer{
		Text:        text,
		Sources:     sources,
		ContextUsed: len(results),
	}, nil
}

// generate runs the answer completion. The second return reports whether
// generation succeeded or the fallback answer was substituted.
func (s *Service) generate(ctx context.Context, question string, results []vector.SearchResult, history []llm.Message) (string, bool) {
	llmCtx, llmSpan := observability.StartLLMSpan(ctx, s.generator.Name(), "complete")
	defer llmSpan.End()

	start := time.Now()
	resp, err := s.generator.Complete(llmCtx, answerPrompt(question, results, history), &llm.RequestOptions{
		Temperature: &s.answerTemperature,
		MaxTokens:   &s.answerMaxTokens,
	})
	if err != nil {
		observability.RecordError(llmSpan, err)
		s.log.Warn("answer generation failed", "error", err)
		return FallbackAnswer, false
	}
	observability.RecordLLMMetrics(llmSpan, resp.InputTokens, resp.OutputTokens, time.Since(start))

	return llm.StripThinkingTags(resp.Content), true
}

// DeleteDocument removes a document from the index first, then from the byte
// store. The index is the authoritative "is this searchable" signal, so it
// is cleared before the bytes: stray bytes after a crash are unreferenced
// and harmless, whereas stray index entries would cite content that no
// longer exists. Deleting an unknown id is a no-op.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	idxCtx, idxSpan := observability.StartIndexSpan(ctx, "delete", 0)
	err := s.index.DeleteByDocument(idxCtx, documentID)
	observability.RecordError(idxSpan, err)
	idxSpan.End()
	if err != nil {
		s.log.Error("delete index entries", "document_id", documentID, "error", err)
		return fmt.Errorf("delete document %s from index: %w", documentID, err)
	}

	if err := s.store.Delete(documentID); err != nil {
		s.log.Error("delete stored bytes", "document_id", documentID, "error", err)
		return fmt.Errorf("delete document %s bytes: %w", documentID, err)
	}

	s.log.Info("document deleted", "document_id", documentID)
	return nil
}

// ListDocuments reports what is currently queryable. The index, not the byte
// store, is authoritative.
func (s *Service) ListDocuments(ctx context.Context) ([]vector.DocumentRef, error) {
	refs, err := s.index.ListDocuments(ctx)
	if err != nil {
		s.log.Error("list documents", "error", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return refs, nil
}

// DocumentInfo returns storage details for an ingested document, or
// store.ErrNotFound.
func (s *Service) DocumentInfo(documentID string) (store.Info, error) {
	return s.store.Stat(documentID)
}
