// Package ingest runs the document indexing pipeline: extract text, split it
// into chunks, embed them, and store everything for retrieval.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docsmith-ai/docsmith/internal/chunk"
	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/extract"
)

// ErrNoUsableText means extraction succeeded but produced nothing worth
// indexing.
var ErrNoUsableText = errors.New("document contains no usable text")

// Store is the persistence surface the pipeline needs. *document.Store
// satisfies it.
type Store interface {
	Create(ctx context.Context, doc *document.Document) error
	SetPageCount(ctx context.Context, id uuid.UUID, pages int) error
	InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []document.Chunk) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	PurgeChunks(ctx context.Context, documentID uuid.UUID) error
	ListUnindexed(ctx context.Context) ([]document.Document, error)
}

// Embedder batch-embeds chunk texts. *embed.Embedder satisfies it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter cuts extracted text into chunks. *chunk.Splitter satisfies it.
type Splitter interface {
	Split(text string, meta chunk.Metadata) ([]chunk.Chunk, error)
}

// Ingestor drives the indexing pipeline for uploaded documents.
//
// Ingestor is safe for concurrent use by multiple goroutines.
type Ingestor struct {
	store    Store
	embedder Embedder
	splitter Splitter
	logger   *slog.Logger
}

// New creates an Ingestor. A nil logger falls back to slog.Default().
func New(store Store, embedder Embedder, splitter Splitter, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		logger:   logger,
	}
}

// Ingest creates the document record and indexes its content. The record is
// written first with status "processing" so a crash mid-pipeline leaves an
// auditable trail; any later failure marks it "failed" with the reason and
// returns the error. Chunks written before a failure are left in place and
// cleaned up by the next Reindex.
func (in *Ingestor) Ingest(ctx context.Context, doc *document.Document) error {
	if err := in.store.Create(ctx, doc); err != nil {
		return err
	}
	return in.index(ctx, doc)
}

// Reindex retries every document whose indexing never completed. Stale
// chunks from earlier attempts are purged before re-embedding. Failures are
// logged and skipped; Reindex returns how many documents it recovered.
func (in *Ingestor) Reindex(ctx context.Context) (int, error) {
	docs, err := in.store.ListUnindexed(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing documents to reindex: %w", err)
	}

	recovered := 0
	for i := range docs {
		doc := &docs[i]
		if err := in.store.PurgeChunks(ctx, doc.ID); err != nil {
			in.logger.Warn("failed to purge stale chunks, skipping",
				"document_id", doc.ID, "filename", doc.Filename, "error", err)
			continue
		}
		if err := in.index(ctx, doc); err != nil {
			in.logger.Warn("reindex failed",
				"document_id", doc.ID, "filename", doc.Filename, "error", err)
			continue
		}
		recovered++
	}

	in.logger.Info("reindex sweep done", "candidates", len(docs), "recovered", recovered)
	return recovered, nil
}

// index runs extraction through completion for an already-created record.
func (in *Ingestor) index(ctx context.Context, doc *document.Document) error {
	res, err := extract.FromFile(doc.FilePath)
	if err != nil {
		return in.fail(ctx, doc, fmt.Errorf("extracting text: %w", err))
	}
	if res.PageCount > 0 && res.PageCount != doc.PageCount {
		doc.PageCount = res.PageCount
		if err := in.store.SetPageCount(ctx, doc.ID, res.PageCount); err != nil {
			return in.fail(ctx, doc, err)
		}
	}

	chunks, err := in.splitter.Split(res.Text, chunk.Metadata{
		DocumentID: doc.ID.String(),
		Filename:   doc.Filename,
		PageCount:  res.PageCount,
	})
	if err != nil {
		return in.fail(ctx, doc, fmt.Errorf("splitting text: %w", err))
	}
	if len(chunks) == 0 {
		return in.fail(ctx, doc, ErrNoUsableText)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return in.fail(ctx, doc, fmt.Errorf("embedding chunks: %w", err))
	}
	if len(embeddings) != len(chunks) {
		return in.fail(ctx, doc, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks)))
	}

	stored := make([]document.Chunk, len(chunks))
	for i, c := range chunks {
		stored[i] = document.Chunk{
			Index:     c.Index,
			Content:   c.Content,
			CharCount: c.CharCount,
			Embedding: embeddings[i],
			Metadata: map[string]any{
				"document_id": c.Metadata.DocumentID,
				"filename":    c.Metadata.Filename,
				"page_count":  c.Metadata.PageCount,
				"total_chars": c.Metadata.TotalChars,
			},
		}
	}
	if err := in.store.InsertChunks(ctx, doc.ID, stored); err != nil {
		return in.fail(ctx, doc, fmt.Errorf("storing chunks: %w", err))
	}

	if err := in.store.MarkCompleted(ctx, doc.ID); err != nil {
		return in.fail(ctx, doc, err)
	}

	in.logger.Info("indexed document",
		"document_id", doc.ID, "filename", doc.Filename,
		"chunks", len(stored), "chars", len(res.Text))
	return nil
}

// fail records the failure reason on the document and propagates the error.
func (in *Ingestor) fail(ctx context.Context, doc *document.Document, cause error) error {
	if err := in.store.MarkFailed(ctx, doc.ID, cause.Error()); err != nil {
		in.logger.Error("failed to record indexing failure",
			"document_id", doc.ID, "error", err)
	}
	return fmt.Errorf("indexing %q: %w", doc.Filename, cause)
}
