// Package pdf extracts plain text from PDF reports, one record per page.
package pdf

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	ldpdf "github.com/ledongthuc/pdf"

	"github.com/maintkg/maintkg/pkg/loader"
)

type Reader struct {
	source string
	file   io.Closer
	pdf    *ldpdf.Reader
	page   int
}

// Open opens a PDF file for page-wise text extraction.
func Open(path string) (*Reader, error) {
	f, r, err := ldpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	return &Reader{source: filepath.Base(path), file: f, pdf: r}, nil
}

// Next returns the next non-empty page as a record. Pages that fail text
// extraction are skipped: scanned pages without a text layer are common in
// maintenance archives and should not abort the run.
func (r *Reader) Next(ctx context.Context) (*loader.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.page >= r.pdf.NumPage() {
			return nil, io.EOF
		}
		r.page++

		page := r.pdf.Page(r.page)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		return &loader.Record{
			ID:     fmt.Sprintf("%s#page-%d", r.source, r.page),
			Source: r.source,
			Text:   text,
		}, nil
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}
