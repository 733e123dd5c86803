package rag

import (
	"fmt"
	"strings"

	"github.com/documind/documind/internal/llm"
	"github.com/documind/documind/internal/vector"
)

// FallbackAnswer is returned whenever generation fails. Retrieval succeeded
// independently, so the sources still accompany it.
const FallbackAnswer = "I'm sorry, I encountered an error while processing your request. Please try again."

// maxHistoryTurns bounds how much prior conversation is replayed to the
// generator.
const maxHistoryTurns = 5

// summaryChunks is how many leading chunks feed the ingest summary, and
// summaryMaxChars caps the combined text sent to the generator.
const (
	summaryChunks   = 5
	summaryMaxChars = 3000
)

const answerSystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
If the context contains relevant information, use it to answer the question.
If the context doesn't contain enough information, say so.
Always cite the source (document name and page number) when using information from the context.`

const summarySystemPrompt = `You are a helpful assistant that creates concise summaries of documents.`

// renderContext formats retrieved chunks into the context block passed to
// the generator, each entry labeled with its source.
func renderContext(results []vector.SearchResult) string {
	if len(results) == 0 {
		return "No relevant context found."
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		name := r.Metadata.DisplayName
		if name == "" {
			name = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("[Source %d: %s, Page %d]\n%s\n", i+1, name, r.Metadata.Page, r.Text))
	}
	return strings.Join(parts, "\n")
}

// answerPrompt assembles the generation prompt: system instructions, at most
// the last maxHistoryTurns turns of history, then the question with its
// retrieved context.
func answerPrompt(question string, results []vector.SearchResult, history []llm.Message) *llm.Prompt {
	var messages []llm.Message
	if n := len(history); n > 0 {
		start := n - maxHistoryTurns
		if start < 0 {
			start = 0
		}
		messages = append(messages, history[start:]...)
	}

	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", renderContext(results), question),
	})

	return &llm.Prompt{
		SystemPrompt: answerSystemPrompt,
		Messages:     messages,
	}
}

// summaryPrompt assembles the best-effort document summary prompt from the
// document's leading chunks.
func summaryPrompt(displayName string, chunkTexts []string) *llm.Prompt {
	if len(chunkTexts) > summaryChunks {
		chunkTexts = chunkTexts[:summaryChunks]
	}
	text := strings.Join(chunkTexts, " ")
	if r := []rune(text); len(r) > summaryMaxChars {
		text = string(r[:summaryMaxChars])
	}

	return &llm.Prompt{
		SystemPrompt: summarySystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Please provide a brief summary of the following document '%s':\n\n%s", displayName, text),
		}},
	}
}

// dedupeSources projects ranked results onto citation sources, keeping the
// first occurrence per (display name, page) pair in rank order.
func dedupeSources(results []vector.SearchResult) []Source {
	seen := make(map[string]bool, len(results))
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		key := fmt.Sprintf("%s_%d", r.Metadata.DisplayName, r.Metadata.Page)
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{
			DisplayName: r.Metadata.DisplayName,
			Page:        r.Metadata.Page,
			DocumentID:  r.Metadata.DocumentID,
		})
	}
	return sources
}
