package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DB is the database surface Store needs. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store persists documents and chunks and runs vector similarity searches.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store over db. A nil logger falls back to slog.Default().
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const documentColumns = `d.id, d.filename, d.file_type, d.file_size, d.file_path,
	d.page_count, d.scope, d.user_id, d.organization_id, d.conversation_id,
	d.indexing_status, d.indexing_error, d.uploaded_at, d.indexed_at,
	(SELECT count(*) FROM document_chunks dc WHERE dc.document_id = d.id)`

// Create inserts doc with indexing status "processing". A zero ID is
// replaced with a fresh UUID; doc is updated in place.
func (s *Store) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if !ValidScope(doc.Scope) {
		return fmt.Errorf("%w: %q", ErrInvalidScope, doc.Scope)
	}
	doc.IndexingStatus = StatusProcessing

	_, err := s.db.Exec(ctx, `
		INSERT INTO documents
			(id, filename, file_type, file_size, file_path, page_count,
			 scope, user_id, organization_id, conversation_id, indexing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID, doc.Filename, doc.FileType, doc.FileSize, doc.FilePath,
		intOrNull(doc.PageCount), doc.Scope,
		textOrNull(doc.UserID), textOrNull(doc.OrganizationID), textOrNull(doc.ConversationID),
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("inserting document %q: %w", doc.Filename, err)
	}

	s.logger.Debug("created document record",
		"document_id", doc.ID, "filename", doc.Filename, "scope", doc.Scope)
	return nil
}

// InsertChunks stores embedded chunks for one document in a single batch.
// Null bytes are stripped from chunk content; Postgres rejects \x00 in text.
func (s *Store) InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.DocumentID = documentID

		content := strings.ReplaceAll(c.Content, "\x00", "")
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %d: %w", c.Index, err)
		}

		batch.Queue(`
			INSERT INTO document_chunks
				(id, document_id, chunk_index, content, char_count, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, documentID, c.Index, content, c.CharCount,
			pgvector.NewVector(c.Embedding), metadata,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting chunk %d of document %s: %w", i, documentID, err)
		}
	}

	s.logger.Debug("stored chunks", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// SetPageCount records the page count discovered during text extraction.
func (s *Store) SetPageCount(ctx context.Context, id uuid.UUID, pages int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET page_count = $2 WHERE id = $1`,
		id, intOrNull(pages),
	)
	if err != nil {
		return fmt.Errorf("setting page count of document %s: %w", id, err)
	}
	return nil
}

// MarkCompleted transitions a document to "completed" and stamps indexed_at.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET indexing_status = $2, indexing_error = NULL, indexed_at = now()
		WHERE id = $1`,
		id, StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("marking document %s completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("marking document %s completed: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFailed transitions a document to "failed" and records the reason.
// Chunks already written stay in place; Reindex sweeps them up later.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents
		SET indexing_status = $2, indexing_error = $3
		WHERE id = $1`,
		id, StatusFailed, reason,
	)
	if err != nil {
		return fmt.Errorf("marking document %s failed: %w", id, err)
	}
	return nil
}

// SearchSimilar returns up to limit chunks from completed documents visible
// under vis, ordered by descending cosine similarity to embedding. Chunks
// scoring below floor are excluded.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, floor float64, limit int, vis Visibility) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	vec := pgvector.NewVector(embedding)
	query := `
		SELECT d.id, d.filename, d.scope, dc.chunk_index, dc.content,
		       1 - (dc.embedding <=> $1) AS similarity
		FROM document_chunks dc
		JOIN documents d ON d.id = dc.document_id
		WHERE d.indexing_status = $2
		  AND 1 - (dc.embedding <=> $1) >= $3`
	args := []any{vec, StatusCompleted, floor}

	if clause, visArgs := vis.clause(len(args) + 1); clause != "" {
		query += "\n\t\t  AND " + clause
		args = append(args, visArgs...)
	}

	query += fmt.Sprintf("\n\t\tORDER BY dc.embedding <=> $1\n\t\tLIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.DocumentID, &m.Filename, &m.Scope, &m.ChunkIndex, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	s.logger.Debug("similarity search done",
		"matches", len(matches), "floor", floor, "limit", limit,
		"unrestricted", vis.Unrestricted())
	return matches, nil
}

// List returns the documents visible under vis, newest first.
func (s *Store) List(ctx context.Context, vis Visibility) ([]Document, error) {
	query := "SELECT " + documentColumns + "\n\t\tFROM documents d"
	var args []any

	if clause, visArgs := vis.clause(1); clause != "" {
		query += "\n\t\tWHERE " + clause
		args = visArgs
	}
	query += "\n\t\tORDER BY d.uploaded_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// GetByFilename returns the most recently uploaded visible document with the
// given filename, or ErrNotFound.
func (s *Store) GetByFilename(ctx context.Context, filename string, vis Visibility) (*Document, error) {
	query := "SELECT " + documentColumns + "\n\t\tFROM documents d\n\t\tWHERE d.filename = $1"
	args := []any{filename}

	if clause, visArgs := vis.clause(2); clause != "" {
		query += " AND " + clause
		args = append(args, visArgs...)
	}
	query += "\n\t\tORDER BY d.uploaded_at DESC\n\t\tLIMIT 1"

	doc, err := scanDocument(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the named visible document if the caller is allowed to.
// It returns the deleted document so the caller can clean up its file.
// ErrNotFound and ErrForbidden are distinct: the first means no visible
// document matched, the second that one did but the caller may not delete it.
func (s *Store) Delete(ctx context.Context, filename, userID, role string, vis Visibility) (*Document, error) {
	doc, err := s.GetByFilename(ctx, filename, vis)
	if err != nil {
		return nil, err
	}

	if !doc.CanDelete(userID, role) {
		return nil, fmt.Errorf("deleting document %q: %w", filename, ErrForbidden)
	}

	// Chunks go with the document via ON DELETE CASCADE.
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("deleting document %q: %w", filename, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("document %q: %w", filename, ErrNotFound)
	}

	s.logger.Info("deleted document",
		"document_id", doc.ID, "filename", doc.Filename, "scope", doc.Scope)
	return doc, nil
}

// ListUnindexed returns documents whose ingestion never completed, oldest
// first. Reindex uses it to retry failed and interrupted uploads.
func (s *Store) ListUnindexed(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+documentColumns+`
		FROM documents d
		WHERE d.indexing_status <> $1
		ORDER BY d.uploaded_at`,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("listing unindexed documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing unindexed documents: %w", err)
	}
	return docs, nil
}

// PurgeChunks deletes every stored chunk of one document. Reindex calls it
// before re-embedding so partial leftovers from a failed run never mix with
// fresh chunks.
func (s *Store) PurgeChunks(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("purging chunks of document %s: %w", documentID, err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc        Document
		pageCount  pgtype.Int4
		userID     pgtype.Text
		orgID      pgtype.Text
		convID     pgtype.Text
		indexError pgtype.Text
		indexedAt  pgtype.Timestamptz
		chunkCount int64
	)

	err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.FilePath,
		&pageCount, &doc.Scope, &userID, &orgID, &convID,
		&doc.IndexingStatus, &indexError, &doc.UploadedAt, &indexedAt, &chunkCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.PageCount = int(pageCount.Int32)
	doc.UserID = userID.String
	doc.OrganizationID = orgID.String
	doc.ConversationID = convID.String
	doc.IndexingError = indexError.String
	doc.ChunkCount = int(chunkCount)
	if indexedAt.Valid {
		t := indexedAt.Time
		doc.IndexedAt = &t
	}

	return &doc, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func intOrNull(n int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(n), Valid: n > 0}
}
