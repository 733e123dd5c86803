package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/documind/documind/internal/chunker"
	"github.com/documind/documind/internal/extract"
	"github.com/documind/documind/internal/llm"
	"github.com/documind/documind/internal/store"
	"github.com/documind/documind/internal/vector"
	"github.com/documind/documind/internal/vector/memory"
)

// fakeExtractor returns a fixed page set regardless of input bytes.
type fakeExtractor struct {
	pages []extract.Page
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) ([]extract.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func (f *fakeExtractor) Name() string { return "fake" }

// fakeProvider embeds texts as two-dimensional letter-frequency vectors
// ([share of 'A', share of 'B']), so queries dominated by one letter rank
// closest to chunks dominated by the same letter. Complete returns a canned
// answer unless failComplete is set.
type fakeProvider struct {
	failComplete bool
	failEmbed    bool
	completions  int
	lastPrompt   *llm.Prompt
	lastOpts     *llm.RequestOptions
}

func (f *fakeProvider) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	f.completions++
	f.lastPrompt = prompt
	f.lastOpts = opts
	if f.failComplete {
		return nil, errors.New("provider unavailable")
	}
	return &llm.Response{Content: "generated answer", InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failEmbed {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		a := float32(strings.Count(t, "A"))
		b := float32(strings.Count(t, "B"))
		total := a + b
		if total == 0 {
			total = 1
		}
		out[i] = []float32{a / total, b / total}
	}
	return out, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func newTestService(t *testing.T, ex extract.Extractor, provider llm.Provider) (*Service, vector.Index) {
	t.Helper()
	st, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	idx := memory.New()
	return NewService(st, ex, chunker.New(1000), idx, provider, provider, nil), idx
}

func TestIngestAndQuery_EndToEnd(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{
		{Number: 1, Text: strings.Repeat("A", 2500)},
		{Number: 2, Text: strings.Repeat("B", 200)},
	}}
	provider := &fakeProvider{}
	svc, _ := newTestService(t, ex, provider)
	ctx := context.Background()

	sum, err := svc.Ingest(ctx, []byte("pdf bytes"), "report.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sum.Pages != 2 {
		t.Errorf("pages=%d, want=2", sum.Pages)
	}
	if sum.Chunks != 4 {
		t.Errorf("chunks=%d, want=4", sum.Chunks)
	}
	if sum.Summary != "generated answer" {
		t.Errorf("summary=%q", sum.Summary)
	}

	refs, err := svc.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(refs) != 1 || refs[0].DocumentID != sum.DocumentID {
		t.Fatalf("ListDocuments=%v, want ingested document", refs)
	}
	if refs[0].DisplayName != "report.pdf" {
		t.Errorf("display name=%q", refs[0].DisplayName)
	}

	// A B-heavy question must retrieve the page-2 chunk first.
	ans, err := svc.Query(ctx, strings.Repeat("B", 10), &QueryOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Text != "generated answer" {
		t.Errorf("answer=%q", ans.Text)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("sources=%v, want exactly 1", ans.Sources)
	}
	if ans.Sources[0].Page != 2 {
		t.Errorf("top source page=%d, want=2", ans.Sources[0].Page)
	}
	if ans.Sources[0].DisplayName != "report.pdf" {
		t.Errorf("top source name=%q", ans.Sources[0].DisplayName)
	}
	if ans.ContextUsed != 1 {
		t.Errorf("context used=%d, want=1", ans.ContextUsed)
	}

	info, err := svc.DocumentInfo(sum.DocumentID)
	if err != nil {
		t.Fatalf("DocumentInfo: %v", err)
	}
	if info.Size != int64(len("pdf bytes")) {
		t.Errorf("stored size=%d", info.Size)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: strings.Repeat("A", 100)}}}
	provider := &fakeProvider{}
	svc, idx := newTestService(t, ex, provider)
	ctx := context.Background()

	content := []byte("identical bytes")
	first, err := svc.Ingest(ctx, content, "doc.pdf")
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := svc.Ingest(ctx, content, "doc.pdf")
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if first.DocumentID != second.DocumentID {
		t.Fatalf("ids differ: %s vs %s", first.DocumentID, second.DocumentID)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("re-ingest duplicated entries: got %d, want 1", len(results))
	}

	refs, err := svc.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("re-ingest duplicated documents: got %d", len(refs))
	}
}

func TestIngest_ExtractionFailureLeavesIndexEmpty(t *testing.T) {
	ex := &fakeExtractor{err: extract.ErrNoText}
	provider := &fakeProvider{}
	svc, idx := newTestService(t, ex, provider)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, []byte("scanned image pdf"), "scan.pdf")
	if !errors.Is(err, extract.ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}

	refs, err := idx.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("failed ingest left index entries: %v", refs)
	}
}

func TestIngest_EmbeddingFailureLeavesIndexEmpty(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "AAAA"}}}
	provider := &fakeProvider{failEmbed: true}
	svc, idx := newTestService(t, ex, provider)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []byte("pdf"), "doc.pdf"); err == nil {
		t.Fatal("expected embedding error")
	}

	refs, err := idx.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("failed ingest left index entries: %v", refs)
	}
}

func TestIngest_SummaryFailureIsBestEffort(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "AAAA"}}}
	provider := &fakeProvider{failComplete: true}
	svc, _ := newTestService(t, ex, provider)

	sum, err := svc.Ingest(context.Background(), []byte("pdf"), "doc.pdf")
	if err != nil {
		t.Fatalf("Ingest should not fail on summary error: %v", err)
	}
	if sum.Summary != "" {
		t.Errorf("summary=%q, want empty", sum.Summary)
	}
	if sum.Chunks != 1 {
		t.Errorf("chunks=%d, want=1", sum.Chunks)
	}
}

func TestQuery_GenerationFailureFallsBack(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: strings.Repeat("A", 50)}}}
	ingestProvider := &fakeProvider{}
	svc, idx := newTestService(t, ex, ingestProvider)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []byte("pdf"), "doc.pdf"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Swap in a generator that fails every completion. Retrieval must
	// survive and the fixed fallback answer carry the sources.
	broken := &fakeProvider{failComplete: true}
	st, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	querySvc := NewService(st, ex, chunker.New(1000), idx, ingestProvider, broken, nil)

	ans, err := querySvc.Query(ctx, "AAAA", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Text != FallbackAnswer {
		t.Errorf("answer=%q, want fallback", ans.Text)
	}
	if len(ans.Sources) == 0 {
		t.Error("fallback answer lost its sources")
	}
}

func TestQuery_EmbeddingFailureFailsQuery(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "AAAA"}}}
	provider := &fakeProvider{failEmbed: true}
	svc, _ := newTestService(t, ex, provider)

	if _, err := svc.Query(context.Background(), "question", nil); err == nil {
		t.Fatal("expected error when query embedding fails")
	}
	if provider.completions != 0 {
		t.Error("generation ran despite embedding failure")
	}
}

func TestQuery_DocumentFilter(t *testing.T) {
	provider := &fakeProvider{}
	ex1 := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: strings.Repeat("A", 40)}}}
	svc, idx := newTestService(t, ex1, provider)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, []byte("doc one"), "one.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Second document with an identical embedding profile.
	ex2 := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: strings.Repeat("A", 41)}}}
	st, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	svc2 := NewService(st, ex2, chunker.New(1000), idx, provider, provider, nil)
	if _, err := svc2.Ingest(ctx, []byte("doc two"), "two.pdf"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	ans, err := svc.Query(ctx, "AAAA", &QueryOptions{DocumentIDs: []string{first.DocumentID}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, src := range ans.Sources {
		if src.DocumentID != first.DocumentID {
			t.Fatalf("filter violated: source from %s", src.DocumentID)
		}
	}
	if len(ans.Sources) == 0 {
		t.Fatal("expected at least one source from the filtered document")
	}
}

func TestQuery_SourcesDeduplicated(t *testing.T) {
	// Three chunks on the same page collapse into one citation.
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: strings.Repeat("A", 2500)}}}
	provider := &fakeProvider{}
	svc, _ := newTestService(t, ex, provider)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []byte("pdf"), "doc.pdf"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	ans, err := svc.Query(ctx, "AAAA", &QueryOptions{TopK: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.ContextUsed != 3 {
		t.Errorf("context used=%d, want=3", ans.ContextUsed)
	}
	if len(ans.Sources) != 1 {
		t.Fatalf("sources=%d, want 1 after dedup", len(ans.Sources))
	}
}

func TestQuery_HistoryTruncatedToLastTurns(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "AAAA"}}}
	provider := &fakeProvider{}
	svc, _ := newTestService(t, ex, provider)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []byte("pdf"), "doc.pdf"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	history := make([]llm.Message, 8)
	for i := range history {
		history[i] = llm.Message{Role: llm.RoleUser, Content: strings.Repeat("x", i+1)}
	}

	if _, err := svc.Query(ctx, "AAAA", &QueryOptions{History: history}); err != nil {
		t.Fatalf("Query: %v", err)
	}

	prompt := provider.lastPrompt
	if prompt == nil {
		t.Fatal("no completion prompt captured")
	}
	// 5 history turns plus the question message.
	if len(prompt.Messages) != maxHistoryTurns+1 {
		t.Fatalf("prompt messages=%d, want=%d", len(prompt.Messages), maxHistoryTurns+1)
	}
	if prompt.Messages[0].Content != history[3].Content {
		t.Error("history not truncated to the most recent turns")
	}
}

func TestQuery_NoMatchesStillAnswers(t *testing.T) {
	ex := &fakeExtractor{pages: nil}
	provider := &fakeProvider{}
	svc, _ := newTestService(t, ex, provider)

	ans, err := svc.Query(context.Background(), "AAAA", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources=%v, want none", ans.Sources)
	}
	if ans.ContextUsed != 0 {
		t.Errorf("context used=%d, want=0", ans.ContextUsed)
	}
	if !strings.Contains(provider.lastPrompt.Messages[0].Content, "No relevant context found.") {
		t.Error("empty retrieval should render the no-context block")
	}
}

func TestSetAnswerParams_OverridesGenerationDefaults(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{{Number: 1, Text: "AAAA"}}}
	provider := &fakeProvider{}
	svc, _ := newTestService(t, ex, provider)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []byte("pdf"), "doc.pdf"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := svc.Query(ctx, "AAAA", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := *provider.lastOpts.Temperature; got != 0.7 {
		t.Errorf("default temperature=%v, want=0.7", got)
	}
	if got := *provider.lastOpts.MaxTokens; got != 1000 {
		t.Errorf("default max tokens=%d, want=1000", got)
	}

	svc.SetAnswerParams(0.2, 256)
	if _, err := svc.Query(ctx, "AAAA", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := *provider.lastOpts.Temperature; got != 0.2 {
		t.Errorf("temperature=%v, want=0.2", got)
	}
	if got := *provider.lastOpts.MaxTokens; got != 256 {
		t.Errorf("max tokens=%d, want=256", got)
	}

	// Non-positive values keep the current settings.
	svc.SetAnswerParams(0, 0)
	if _, err := svc.Query(ctx, "AAAA", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := *provider.lastOpts.Temperature; got != 0.2 {
		t.Errorf("temperature after zero override=%v, want=0.2", got)
	}
	if got := *provider.lastOpts.MaxTokens; got != 256 {
		t.Errorf("max tokens after zero override=%d, want=256", got)
	}
}

func TestDeleteDocument_RemovesEverything(t *testing.T) {
	ex := &fakeExtractor{pages: []extract.Page{
		{Number: 1, Text: strings.Repeat("A", 1500)},
		{Number: 2, Text: strings.Repeat("B", 100)},
	}}
	provider := &fakeProvider{}
	svc, idx := newTestService(t, ex, provider)
	ctx := context.Background()

	sum, err := svc.Ingest(ctx, []byte("pdf"), "doc.pdf")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := svc.DeleteDocument(ctx, sum.DocumentID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	refs, err := svc.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("document still listed after delete: %v", refs)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("entries still searchable after delete: %d", len(results))
	}

	if _, err := svc.DocumentInfo(sum.DocumentID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is a no-op.
	if err := svc.DeleteDocument(ctx, sum.DocumentID); err != nil {
		t.Fatalf("second DeleteDocument: %v", err)
	}
}
