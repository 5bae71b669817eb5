// Package jsonl reads newline-delimited JSON documents, one record per line.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/maintkg/maintkg/pkg/loader"
)

// Options selects the JSON fields to read. TextField defaults to "text",
// IDField to "id" with the line number as fallback.
type Options struct {
	TextField string
	IDField   string
}

type Reader struct {
	source  string
	scanner *bufio.Scanner
	opts    Options
	line    int
}

func NewReader(r io.Reader, source string, opts Options) *Reader {
	if opts.TextField == "" {
		opts.TextField = "text"
	}
	if opts.IDField == "" {
		opts.IDField = "id"
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{source: source, scanner: scanner, opts: opts}
}

func (r *Reader) Next(ctx context.Context) (*loader.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading line %d: %w", r.line+1, err)
			}
			return nil, io.EOF
		}
		r.line++

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		var doc map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, fmt.Errorf("line %d is not a JSON object: %w", r.line, err)
		}

		var text string
		if raw, ok := doc[r.opts.TextField]; ok {
			if err := json.Unmarshal(raw, &text); err != nil {
				return nil, fmt.Errorf("line %d: field %q is not a string", r.line, r.opts.TextField)
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		id := stringField(doc[r.opts.IDField])
		if id == "" {
			id = "line_" + strconv.Itoa(r.line)
		}

		return &loader.Record{ID: id, Source: r.source, Text: text}, nil
	}
}

func stringField(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
