package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/extract"
	"github.com/docsmith-ai/docsmith/internal/ingest"
)

type documentHandler struct {
	store     DocumentStore
	ingestor  Ingestor
	uploadDir string
	maxUpload int64
	logger    *slog.Logger
}

// upload accepts a multipart document, stores the file, and indexes it.
// With auto_index=false the file is only recorded; the next reindex sweep
// picks it up.
func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("upload exceeds %d bytes", h.maxUpload), h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_multipart", "invalid multipart form", h.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing_file", "file field is required", h.logger)
		return
	}
	defer func() { _ = file.Close() }()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		WriteError(w, http.StatusBadRequest, "invalid_filename", "invalid filename", h.logger)
		return
	}
	if !extract.Supported(filename) {
		WriteError(w, http.StatusBadRequest, "unsupported_type",
			fmt.Sprintf("unsupported file type %q", filepath.Ext(filename)), h.logger)
		return
	}

	id := identityFromValues(r.Form)
	scope := document.Scope(r.FormValue("scope"))
	if scope == "" {
		scope = document.ScopeUser
	}
	if err := validateScopeIdentifiers(scope, id); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_scope", err.Error(), h.logger)
		return
	}

	path, size, err := h.saveFile(file, filename)
	if err != nil {
		h.logger.Error("failed to save upload", "filename", filename, "error", err)
		WriteError(w, http.StatusInternalServerError, "save_failed", "failed to store uploaded file", h.logger)
		return
	}

	doc := &document.Document{
		Filename:       filename,
		FileType:       strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		FileSize:       size,
		FilePath:       path,
		Scope:          scope,
		UserID:         id.UserID,
		OrganizationID: id.OrganizationID,
		ConversationID: id.ConversationID,
	}

	if r.FormValue("auto_index") == "false" {
		if err := h.store.Create(r.Context(), doc); err != nil {
			WriteError(w, http.StatusInternalServerError, "create_failed", "failed to record document", h.logger)
			return
		}
		WriteJSON(w, http.StatusCreated, doc)
		return
	}

	if err := h.ingestor.Ingest(r.Context(), doc); err != nil {
		if errors.Is(err, ingest.ErrNoUsableText) || errors.Is(err, extract.ErrNoText) {
			WriteError(w, http.StatusUnprocessableEntity, "no_usable_text",
				"document contains no extractable text", h.logger)
			return
		}
		// The record exists with status "failed"; reindex can retry it.
		WriteError(w, http.StatusInternalServerError, "indexing_failed",
			fmt.Sprintf("indexing failed for %q", filename), h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, doc)
}

// list returns the documents visible to the caller.
func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	id := identityFromValues(r.URL.Query())

	docs, err := h.store.List(r.Context(), id.visibility())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "list_failed", "failed to list documents", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     len(docs),
	})
}

// delete removes a document by filename. 404 means no visible document
// matched; 403 means one did but the caller lacks permission.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	id := identityFromValues(r.URL.Query())

	doc, err := h.store.Delete(r.Context(), filename, id.UserID, id.Role, id.visibility())
	switch {
	case errors.Is(err, document.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found",
			fmt.Sprintf("document %q not found", filename), h.logger)
		return
	case errors.Is(err, document.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden",
			"you do not have permission to delete this document", h.logger)
		return
	case err != nil:
		WriteError(w, http.StatusInternalServerError, "delete_failed", "failed to delete document", h.logger)
		return
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("failed to remove uploaded file",
				"path", doc.FilePath, "error", err)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{"deleted": filename})
}

// reindex retries every document whose ingestion never completed.
func (h *documentHandler) reindex(w http.ResponseWriter, r *http.Request) {
	recovered, err := h.ingestor.Reindex(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "reindex_failed", "reindex sweep failed", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"recovered": recovered})
}

// saveFile writes the upload under a collision-free name and returns its
// path and size.
func (h *documentHandler) saveFile(src io.Reader, filename string) (string, int64, error) {
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("creating upload dir: %w", err)
	}

	path := filepath.Join(h.uploadDir, uuid.New().String()+"_"+filename)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}

	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("writing upload file: %w", err)
	}
	return path, size, nil
}

// validateScopeIdentifiers enforces the identifier each scope requires.
func validateScopeIdentifiers(scope document.Scope, id identity) error {
	if !document.ValidScope(scope) {
		return fmt.Errorf("invalid scope %q", scope)
	}
	switch scope {
	case document.ScopeOrganization:
		if id.OrganizationID == "" {
			return errors.New("organization scope requires organization_id")
		}
	case document.ScopeUser:
		if id.UserID == "" {
			return errors.New("user scope requires user_id")
		}
	case document.ScopeConversation:
		if id.ConversationID == "" {
			return errors.New("conversation scope requires conversation_id")
		}
	}
	return nil
}
