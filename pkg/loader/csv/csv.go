// Package csv reads maintenance intervention logs exported as CSV. Each row
// becomes one record whose text lays the fields out in a fixed narrative
// order, which gives the extraction model consistent positional context.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/maintkg/maintkg/pkg/loader"
)

// Options maps intervention CSV columns by header name. Matching is
// case-insensitive. Only the report column is required; the others fall
// back to placeholders when absent.
type Options struct {
	CaseColumn       string
	DateColumn       string
	TechnicianColumn string
	ReportColumn     string
	PieceColumn      string
}

func (o *Options) withDefaults() {
	if o.CaseColumn == "" {
		o.CaseColumn = "case"
	}
	if o.DateColumn == "" {
		o.DateColumn = "date"
	}
	if o.TechnicianColumn == "" {
		o.TechnicianColumn = "technician"
	}
	if o.ReportColumn == "" {
		o.ReportColumn = "report"
	}
	if o.PieceColumn == "" {
		o.PieceColumn = "piece"
	}
}

// Reader iterates intervention rows of a CSV stream.
type Reader struct {
	source string
	csv    *csv.Reader

	caseIdx int
	dateIdx int
	techIdx int
	repIdx  int
	pieceIdx int

	row int
}

// NewReader reads the header row and resolves column positions. A missing
// report column is a configuration error.
func NewReader(r io.Reader, source string, opts Options) (*Reader, error) {
	opts.withDefaults()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	idx := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	rd := &Reader{
		source:   source,
		csv:      cr,
		caseIdx:  idx(opts.CaseColumn),
		dateIdx:  idx(opts.DateColumn),
		techIdx:  idx(opts.TechnicianColumn),
		repIdx:   idx(opts.ReportColumn),
		pieceIdx: idx(opts.PieceColumn),
	}
	if rd.repIdx < 0 {
		return nil, fmt.Errorf("CSV has no %q column", opts.ReportColumn)
	}
	return rd, nil
}

func (r *Reader) Next(ctx context.Context) (*loader.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := r.csv.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		r.row++

		report := field(row, r.repIdx)
		if report == "" {
			continue
		}

		caseID := field(row, r.caseIdx)
		if caseID == "" {
			caseID = strconv.Itoa(r.row - 1)
		}
		piece := field(row, r.pieceIdx)
		if piece == "" {
			piece = "None"
		}

		text := fmt.Sprintf("Case_%s - %s - Technician_%s - %s - %s",
			caseID, field(row, r.dateIdx), field(row, r.techIdx), report, piece)

		return &loader.Record{
			ID:     "Case_" + caseID,
			Source: r.source,
			Text:   text,
		}, nil
	}
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
