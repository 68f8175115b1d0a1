package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/rag"
)

type searchHandler struct {
	retriever Retriever
	logger    *slog.Logger
}

type searchRequest struct {
	Query          string `json:"query"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	ConversationID string `json:"conversation_id"`

	// Per-request retrieval overrides; zero/absent keeps the server defaults.
	TopK                int      `json:"top_k"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

type searchResponse struct {
	Matches []document.Match `json:"matches"`
	Total   int              `json:"total"`
}

// maxRequestTopK caps per-request result counts, matching the config range.
const maxRequestTopK = 50

// retrieveOptions converts per-request overrides into retrieval options.
// The second return value is a non-empty error code when a value is out of
// range.
func retrieveOptions(topK int, threshold *float64) ([]rag.Option, string) {
	if topK < 0 || topK > maxRequestTopK {
		return nil, "invalid_top_k"
	}
	if threshold != nil && (*threshold < 0 || *threshold > 1) {
		return nil, "invalid_threshold"
	}

	var opts []rag.Option
	if topK > 0 {
		opts = append(opts, rag.WithTopK(topK))
	}
	if threshold != nil {
		opts = append(opts, rag.WithRetrievalFloor(*threshold))
	}
	return opts, ""
}

// search returns raw similarity matches without generating an answer.
// Useful for debugging retrieval quality and for clients that render their
// own excerpts.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body", h.logger)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteError(w, http.StatusBadRequest, "missing_query", "query is required", h.logger)
		return
	}

	opts, errCode := retrieveOptions(req.TopK, req.SimilarityThreshold)
	if errCode != "" {
		WriteError(w, http.StatusBadRequest, errCode,
			"top_k must be 1-50 and similarity_threshold in [0,1]", h.logger)
		return
	}

	vis := document.Visibility{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		ConversationID: req.ConversationID,
	}

	matches, err := h.retriever.Retrieve(r.Context(), req.Query, vis, opts...)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "search_failed", "retrieval failed", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, searchResponse{Matches: matches, Total: len(matches)})
}
