// Package chunk splits document text into overlapping pieces for embedding.
//
// Splitting is delegated to langchaingo's recursive character splitter, which
// prefers structural boundaries (paragraphs, lines, sentences, clauses,
// spaces) and only falls back to raw character splits when a unit still
// exceeds the size limit. Consecutive chunks overlap so context survives a
// boundary.
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ErrInvalidPolicy indicates an inconsistent size/overlap configuration.
var ErrInvalidPolicy = errors.New("chunk overlap must be strictly smaller than chunk size")

// defaultSeparators in priority order: paragraph, line, sentence, clause,
// word, raw character fallback.
var defaultSeparators = []string{"\n\n", "\n", ". ", ", ", " ", ""}

// Metadata is document-level metadata inherited by every chunk.
type Metadata struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count,omitempty"`
	TotalChars int    `json:"total_chars"`
}

// Chunk is one piece of a split document.
type Chunk struct {
	Index     int
	Content   string
	CharCount int
	Metadata  Metadata
}

// Splitter produces overlapping chunks from document text.
// Safe for concurrent use; it holds no per-call state.
type Splitter struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
}

// NewSplitter creates a Splitter with the given size and overlap (both in
// characters). The overlap < size invariant is enforced here, once, rather
// than on every call.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: size=%d", ErrInvalidPolicy, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidPolicy, size, overlap)
	}

	s := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(defaultSeparators),
	)

	return &Splitter{size: size, overlap: overlap, splitter: s}, nil
}

// Size returns the configured maximum chunk size in characters.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap in characters.
func (s *Splitter) Overlap() int { return s.overlap }

// Split splits text into ordered chunks carrying the given document metadata.
// Empty or whitespace-only input yields an empty slice, not an error.
func (s *Splitter) Split(text string, meta Metadata) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	meta.TotalChars = len(text)

	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}

	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			Index:     i,
			Content:   part,
			CharCount: len(part),
			Metadata:  meta,
		})
	}

	return chunks, nil
}
