// Package embed wraps a Genkit ai.Embedder behind the small surface the rest
// of docsmith needs: single and batched embedding plus cosine similarity.
//
// The underlying embedder is loaded once at startup and is safe for
// concurrent read-only use; Embedder adds no mutable state of its own.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// Embedder generates fixed-dimension vectors from text.
type Embedder struct {
	embedder ai.Embedder
	dim      int
	logger   *slog.Logger
}

// New creates an Embedder over a Genkit ai.Embedder producing dim-dimensional
// vectors. A nil logger falls back to slog.Default().
func New(embedder ai.Embedder, dim int, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{embedder: embedder, dim: dim, logger: logger}
}

// Dimension returns the vector dimensionality of the underlying model.
func (e *Embedder) Dimension() int { return e.dim }

// Embed returns the embedding vector for text. Empty or whitespace-only text
// yields a zero vector of the model dimensionality rather than an error, so
// callers never special-case blank input.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		e.logger.Debug("blank text given to embedder, returning zero vector")
		return make([]float32, e.dim), nil
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != e.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), e.dim)
	}
	return vec, nil
}

// EmbedBatch embeds texts in a single request, preserving input order.
// Blank entries come back as zero vectors, same as Embed.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Blank entries are excluded from the request and re-inserted as zero
	// vectors afterwards, keeping positions stable.
	docs := make([]*ai.Document, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, ai.DocumentFromText(text, nil))
		positions = append(positions, i)
	}

	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, e.dim)
	}

	if len(docs) == 0 {
		return out, nil
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("generating batch embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(docs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), len(docs))
	}

	for i, emb := range resp.Embeddings {
		vec := emb.Embedding
		if len(vec) != e.dim {
			return nil, fmt.Errorf("embedding dimension mismatch at index %d: got %d, want %d",
				positions[i], len(vec), e.dim)
		}
		out[positions[i]] = vec
	}

	return out, nil
}

// CosineSimilarity returns the cosine similarity of a and b.
// When either vector has zero magnitude, or the lengths differ, it returns 0:
// a zero vector carries no direction, so "not similar at all" is the policy
// here rather than an error.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
