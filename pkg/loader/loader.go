// Package loader turns source material into a stream of text records for
// the ingestion pipeline. Each source format lives in its own subpackage
// behind the Iterator interface.
package loader

import (
	"context"
	"io"
)

// Record is one unit of source text. ID is stable per source so re-running
// an ingest produces the same records.
type Record struct {
	ID     string
	Source string
	Text   string
}

// Iterator yields records one at a time. Next returns io.EOF after the last
// record.
type Iterator interface {
	Next(ctx context.Context) (*Record, error)
}

// ReadAll drains an iterator.
func ReadAll(ctx context.Context, it Iterator) ([]Record, error) {
	var out []Record
	for {
		rec, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *rec)
	}
}

type sliceIterator struct {
	records []Record
	pos     int
}

// FromRecords wraps pre-built records in an Iterator.
func FromRecords(records []Record) Iterator {
	return &sliceIterator{records: records}
}

func (s *sliceIterator) Next(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return &rec, nil
}
