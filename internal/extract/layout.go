package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LayoutExtractor is the primary strategy: row-ordered text that preserves
// the page layout reading order.
type LayoutExtractor struct{}

func NewLayoutExtractor() *LayoutExtractor { return &LayoutExtractor{} }

func (e *LayoutExtractor) Name() string { return "layout" }

func (e *LayoutExtractor) Extract(_ context.Context, data []byte) (pages []Page, err error) {
	// The underlying reader panics on malformed content streams; a panic
	// here must surface as an error so the chain can fall back.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("layout extractor: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages = make([]Page, 0, total)
	for n := 1; n <= total; n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: n})
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}

		var sb strings.Builder
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			sb.WriteByte('\n')
		}
		pages = append(pages, Page{Number: n, Text: sb.String()})
	}
	return pages, nil
}

var _ Extractor = (*LayoutExtractor)(nil)
