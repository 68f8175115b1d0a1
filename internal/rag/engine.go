// Package rag retrieves document chunks relevant to a question and decides
// whether they are strong enough to ground an answer on.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docsmith-ai/docsmith/internal/document"
)

// Searcher runs vector similarity searches over stored chunks.
// *document.Store satisfies it.
type Searcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, floor float64, limit int, vis document.Visibility) ([]document.Match, error)
}

// Embedder turns query text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Params are the retrieval parameters for one query.
type Params struct {
	// TopK is the maximum number of chunks returned.
	TopK int

	// Floor is the minimum similarity a chunk needs to be retrieved at all.
	Floor float64
}

// Option overrides a retrieval parameter, either as an Engine default at
// construction or for a single Retrieve call.
type Option func(*Params)

// WithTopK sets the number of chunks retrieved per query.
// Non-positive values are ignored.
func WithTopK(k int) Option {
	return func(p *Params) {
		if k > 0 {
			p.TopK = k
		}
	}
}

// WithRetrievalFloor sets the minimum similarity a chunk needs to be
// retrieved at all. Keep the default low: the relevance cutoff that gates
// grounding is applied later, and retrieval should stay broad so near misses
// remain observable.
func WithRetrievalFloor(floor float64) Option {
	return func(p *Params) { p.Floor = floor }
}

// Engine embeds queries and retrieves the closest visible chunks.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	searcher Searcher
	embedder Embedder
	logger   *slog.Logger
	defaults Params
}

// NewEngine creates an Engine with topK 5 and retrieval floor 0 unless
// overridden. A nil logger falls back to slog.Default().
func NewEngine(searcher Searcher, embedder Embedder, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		searcher: searcher,
		embedder: embedder,
		logger:   logger,
		defaults: Params{TopK: 5, Floor: 0},
	}
	for _, opt := range opts {
		opt(&e.defaults)
	}
	return e
}

// Retrieve returns up to topK chunks visible under vis, ordered by
// descending similarity to query. Per-call options override the Engine
// defaults for this query only.
func (e *Engine) Retrieve(ctx context.Context, query string, vis document.Visibility, opts ...Option) ([]document.Match, error) {
	p := e.defaults
	for _, opt := range opts {
		opt(&p)
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := e.searcher.SearchSimilar(ctx, embedding, p.Floor, p.TopK, vis)
	if err != nil {
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}

	e.logger.Debug("retrieved chunks",
		"matches", len(matches), "top_k", p.TopK, "floor", p.Floor)
	return matches, nil
}
