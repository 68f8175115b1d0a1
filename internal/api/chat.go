package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/rag"
)

type chatHandler struct {
	retriever Retriever
	answerer  Answerer
	policy    rag.Policy
	logger    *slog.Logger
}

type chatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	ConversationID string `json:"conversation_id"`

	// Per-request retrieval overrides; zero/absent keeps the server defaults.
	TopK                int      `json:"top_k"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

// send answers a question against the caller's visible documents. When the
// generation backend is down entirely the request fails with 503; when a
// generation attempt fails after successful retrieval the client still gets
// a 200 with a degraded answer and the sources that were found.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body", h.logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return
	}

	opts, errCode := retrieveOptions(req.TopK, req.SimilarityThreshold)
	if errCode != "" {
		WriteError(w, http.StatusBadRequest, errCode,
			"top_k must be 1-50 and similarity_threshold in [0,1]", h.logger)
		return
	}

	if err := h.answerer.Health(r.Context()); err != nil {
		h.logger.Error("generation backend unavailable", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "backend_unavailable",
			"the answer backend is unavailable, try again later", h.logger)
		return
	}

	vis := document.Visibility{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		ConversationID: req.ConversationID,
	}

	matches, err := h.retriever.Retrieve(r.Context(), req.Message, vis, opts...)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "retrieval_failed", "document retrieval failed", h.logger)
		return
	}

	decision := h.policy.Decide(matches)

	resp, err := h.answerer.Answer(r.Context(), req.Message, decision)
	if err != nil && resp == nil {
		WriteError(w, http.StatusInternalServerError, "generation_failed", "answer generation failed", h.logger)
		return
	}
	if err != nil {
		h.logger.Warn("returning degraded answer", "error", err)
	}

	WriteJSON(w, http.StatusOK, resp)
}

// health reports generation backend liveness for clients that want to warn
// users before they type a question.
func (h *chatHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.answerer.Health(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
