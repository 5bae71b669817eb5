package chunk

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is a bounded, possibly overlapping slice of source text submitted as
// one extraction unit. Offset and Overlap are measured in the splitter's
// units (runes or tokens). Chunks from the same source share Overlap units
// with their predecessor so that entities sitting on a window boundary are
// seen whole by at least one extraction call.
type Chunk struct {
	SourceID string
	Index    int
	Text     string
	Offset   int
	Overlap  int
}

// Splitter produces fixed-size overlapping windows over input text. The zero
// value is not usable; construct with NewSplitter or NewTokenSplitter.
type Splitter struct {
	size     int
	overlap  int
	encoding string
}

// NewSplitter returns a rune-based splitter. size and overlap are rune
// counts with 0 <= overlap < size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk: overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// NewTokenSplitter returns a splitter that measures windows in tokens of the
// given tiktoken encoding (e.g. "o200k_base") instead of runes.
func NewTokenSplitter(size, overlap int, encoding string) (*Splitter, error) {
	s, err := NewSplitter(size, overlap)
	if err != nil {
		return nil, err
	}
	if _, err := tiktoken.GetEncoding(encoding); err != nil {
		return nil, fmt.Errorf("chunk: unknown token encoding %q: %w", encoding, err)
	}
	s.encoding = encoding
	return s, nil
}

// Split cuts text into chunks. It is deterministic and total: concatenating
// the first chunk with every later chunk minus its overlap prefix
// reconstructs the input exactly, and no input ever produces an error.
// Empty input yields no chunks.
func (s *Splitter) Split(sourceID, text string) []Chunk {
	if text == "" {
		return nil
	}
	if s.encoding != "" {
		return s.splitTokens(sourceID, text)
	}
	return s.splitRunes(sourceID, text)
}

func (s *Splitter) splitRunes(sourceID, text string) []Chunk {
	runes := []rune(text)
	step := s.size - s.overlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+s.size, len(runes))
		overlap := 0
		if start > 0 {
			overlap = s.overlap
		}
		chunks = append(chunks, Chunk{
			SourceID: sourceID,
			Index:    len(chunks),
			Text:     string(runes[start:end]),
			Offset:   start,
			Overlap:  overlap,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func (s *Splitter) splitTokens(sourceID, text string) []Chunk {
	enc, err := tiktoken.GetEncoding(s.encoding)
	if err != nil {
		// Encoding validity was checked at construction.
		return nil
	}

	tokens := enc.Encode(text, nil, nil)
	step := s.size - s.overlap

	var chunks []Chunk
	for start := 0; start < len(tokens); start += step {
		end := min(start+s.size, len(tokens))
		overlap := 0
		if start > 0 {
			overlap = s.overlap
		}
		chunks = append(chunks, Chunk{
			SourceID: sourceID,
			Index:    len(chunks),
			Text:     enc.Decode(tokens[start:end]),
			Offset:   start,
			Overlap:  overlap,
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
