// Package extract turns raw PDF bytes into ordered page texts. Extraction is
// a capability with interchangeable strategies; the Chain tries them in order
// and never mixes strategies within one document.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoText is returned when every strategy failed to extract any text.
var ErrNoText = errors.New("no text could be extracted")

// Page is the extracted text of a single document page.
type Page struct {
	Number int // 1-based
	Text   string
}

// Extractor converts raw document bytes into ordered page texts.
type Extractor interface {
	// Extract returns one Page per document page, in page order.
	Extract(ctx context.Context, data []byte) ([]Page, error)
	// Name identifies the strategy for logging.
	Name() string
}

// Chain tries each extractor in order and returns the first result that
// contains any non-whitespace text. A strategy that errors or yields an
// entirely blank document is discarded wholesale and the next strategy
// re-extracts from scratch, so a document's pages always come from a single
// strategy.
type Chain struct {
	extractors []Extractor
}

// NewChain builds an extraction chain. Order matters: the first extractor is
// the preferred strategy.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Extract(ctx context.Context, data []byte) ([]Page, error) {
	var errs []error
	for _, e := range c.extractors {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pages, err := e.Extract(ctx, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if hasText(pages) {
			return pages, nil
		}
		errs = append(errs, fmt.Errorf("%s: empty output", e.Name()))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoText, errors.Join(errs...))
	}
	return nil, ErrNoText
}

func hasText(pages []Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
