package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dslipak/pdf"
)

// PlainExtractor is the fallback strategy: raw text content per page with no
// layout reconstruction. It handles documents the layout extractor chokes on.
type PlainExtractor struct{}

func NewPlainExtractor() *PlainExtractor { return &PlainExtractor{} }

func (e *PlainExtractor) Name() string { return "plain" }

func (e *PlainExtractor) Extract(_ context.Context, data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("plain extractor: %v", r)
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

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		pages = append(pages, Page{Number: n, Text: text})
	}
	return pages, nil
}

var _ Extractor = (*PlainExtractor)(nil)
