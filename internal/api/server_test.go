package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/docsmith-ai/docsmith/internal/answer"
	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/ingest"
	"github.com/docsmith-ai/docsmith/internal/log"
	"github.com/docsmith-ai/docsmith/internal/rag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockStore struct {
	docs      []document.Document
	listErr   error
	created   []*document.Document
	createErr error
	deleted   *document.Document
	deleteErr error

	gotVis document.Visibility
}

func (m *mockStore) Create(_ context.Context, doc *document.Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, doc)
	return nil
}

func (m *mockStore) List(_ context.Context, vis document.Visibility) ([]document.Document, error) {
	m.gotVis = vis
	return m.docs, m.listErr
}

func (m *mockStore) Delete(_ context.Context, _, _, _ string, vis document.Visibility) (*document.Document, error) {
	m.gotVis = vis
	return m.deleted, m.deleteErr
}

type mockIngestor struct {
	ingested   []*document.Document
	ingestErr  error
	recovered  int
	reindexErr error
}

func (m *mockIngestor) Ingest(_ context.Context, doc *document.Document) error {
	if m.ingestErr != nil {
		return m.ingestErr
	}
	m.ingested = append(m.ingested, doc)
	return nil
}

func (m *mockIngestor) Reindex(context.Context) (int, error) {
	return m.recovered, m.reindexErr
}

type mockRetriever struct {
	matches []document.Match
	err     error

	gotQuery  string
	gotVis    document.Visibility
	gotParams rag.Params
}

func (m *mockRetriever) Retrieve(_ context.Context, query string, vis document.Visibility, opts ...rag.Option) ([]document.Match, error) {
	m.gotQuery = query
	m.gotVis = vis
	m.gotParams = rag.Params{}
	for _, opt := range opts {
		opt(&m.gotParams)
	}
	return m.matches, m.err
}

type mockAnswerer struct {
	resp      *answer.Response
	err       error
	healthErr error

	gotDecision rag.Decision
}

func (m *mockAnswerer) Answer(_ context.Context, _ string, decision rag.Decision) (*answer.Response, error) {
	m.gotDecision = decision
	return m.resp, m.err
}

func (m *mockAnswerer) Health(context.Context) error {
	return m.healthErr
}

type testServer struct {
	store     *mockStore
	ingestor  *mockIngestor
	retriever *mockRetriever
	answerer  *mockAnswerer
	uploadDir string
	handler   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		store:     &mockStore{},
		ingestor:  &mockIngestor{},
		retriever: &mockRetriever{},
		answerer:  &mockAnswerer{resp: &answer.Response{Answer: "ok", Mode: rag.ModeGeneral, Confidence: 80}},
		uploadDir: t.TempDir(),
	}

	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Store:     ts.store,
		Ingestor:  ts.ingestor,
		Retriever: ts.retriever,
		Answerer:  ts.answerer,
		Policy:    rag.Policy{RelevanceCutoff: 0.4, MaxContextChars: 3000},
		UploadDir: ts.uploadDir,
		RateBurst: 1000,
	})
	require.NoError(t, err)

	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, "notes.txt", "hello world", map[string]string{
		"scope":   "user",
		"user_id": "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := ts.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, ts.ingestor.ingested, 1)
	doc := ts.ingestor.ingested[0]
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, "txt", doc.FileType)
	assert.Equal(t, document.ScopeUser, doc.Scope)
	assert.Equal(t, "alice", doc.UserID)

	// The upload landed on disk under a collision-free name.
	assert.True(t, strings.HasPrefix(doc.FilePath, ts.uploadDir))
	data, err := os.ReadFile(doc.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestUpload_AutoIndexDisabled(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, "later.txt", "index me later", map[string]string{
		"scope":      "user",
		"user_id":    "alice",
		"auto_index": "false",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := ts.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Empty(t, ts.ingestor.ingested, "auto_index=false must not trigger the pipeline")
	require.Len(t, ts.store.created, 1)
	assert.Equal(t, "later.txt", ts.store.created[0].Filename)
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing file",
			filename: "",
			fields:   map[string]string{"scope": "user", "user_id": "alice"},
			wantCode: http.StatusBadRequest,
			wantErr:  "missing_file",
		},
		{
			name:     "unsupported type",
			filename: "archive.zip",
			fields:   map[string]string{"scope": "user", "user_id": "alice"},
			wantCode: http.StatusBadRequest,
			wantErr:  "unsupported_type",
		},
		{
			name:     "unknown scope",
			filename: "notes.txt",
			fields:   map[string]string{"scope": "global"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_scope",
		},
		{
			name:     "org scope without org id",
			filename: "notes.txt",
			fields:   map[string]string{"scope": "organization"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_scope",
		},
		{
			name:     "user scope without user id",
			filename: "notes.txt",
			fields:   map[string]string{"scope": "user"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_scope",
		},
		{
			name:     "conversation scope without conversation id",
			filename: "notes.txt",
			fields:   map[string]string{"scope": "conversation", "user_id": "alice"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			body, contentType := multipartUpload(t, tt.filename, "content", tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
			req.Header.Set("Content-Type", contentType)

			rec := ts.do(t, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeError(t, rec))
			assert.Empty(t, ts.ingestor.ingested)
		})
	}
}

func TestUpload_NoUsableText(t *testing.T) {
	ts := newTestServer(t)
	ts.ingestor.ingestErr = ingest.ErrNoUsableText

	body, contentType := multipartUpload(t, "blank.txt", "   ", map[string]string{
		"scope": "user", "user_id": "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := ts.do(t, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "no_usable_text", decodeError(t, rec))
}

func TestUpload_IndexingFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.ingestor.ingestErr = errors.New("embedding backend down")

	body, contentType := multipartUpload(t, "notes.txt", "content", map[string]string{
		"scope": "user", "user_id": "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := ts.do(t, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "indexing_failed", decodeError(t, rec))
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(t)
	ts.store.docs = []document.Document{
		{Filename: "a.txt", Scope: document.ScopeUser, UserID: "alice"},
		{Filename: "b.txt", Scope: document.ScopeOrganization, OrganizationID: "acme"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents?user_id=alice&organization_id=acme", nil)
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Documents []document.Document `json:"documents"`
		Total     int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)

	assert.Equal(t, document.Visibility{UserID: "alice", OrganizationID: "acme"}, ts.store.gotVis)
}

func TestDeleteDocument(t *testing.T) {
	ts := newTestServer(t)

	path := filepath.Join(ts.uploadDir, "on-disk.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	ts.store.deleted = &document.Document{Filename: "report.pdf", FilePath: path}

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/report.pdf?user_id=alice", nil)
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The file on disk went with the record.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteDocument_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", document.ErrNotFound, http.StatusNotFound, "not_found"},
		{"forbidden", document.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"store failure", errors.New("connection lost"), http.StatusInternalServerError, "delete_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.store.deleteErr = tt.err

			req := httptest.NewRequest(http.MethodDelete, "/api/documents/report.pdf?user_id=bob", nil)
			rec := ts.do(t, req)
			require.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec))
		})
	}
}

func TestReindex(t *testing.T) {
	ts := newTestServer(t)
	ts.ingestor.recovered = 3

	req := httptest.NewRequest(http.MethodPost, "/api/documents/reindex", nil)
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recovered": 3}`, rec.Body.String())
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.retriever.matches = []document.Match{
		{Filename: "a.txt", Similarity: 0.9},
		{Filename: "b.txt", Similarity: 0.7},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query": "refund policy", "user_id": "alice"}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "a.txt", body.Matches[0].Filename)

	assert.Equal(t, "refund policy", ts.retriever.gotQuery)
	assert.Equal(t, document.Visibility{UserID: "alice"}, ts.retriever.gotVis)
	assert.Equal(t, rag.Params{}, ts.retriever.gotParams, "no overrides without top_k/similarity_threshold")
}

func TestSearch_PerRequestOverrides(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query": "refund policy", "top_k": 10, "similarity_threshold": 0.9}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 10, ts.retriever.gotParams.TopK)
	assert.Equal(t, 0.9, ts.retriever.gotParams.Floor)
}

func TestSearch_ExplicitZeroThreshold(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query": "q", "similarity_threshold": 0}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0.0, ts.retriever.gotParams.Floor)
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"blank query", `{"query": "  "}`, "missing_query"},
		{"not json", `not json`, "invalid_json"},
		{"negative top_k", `{"query": "q", "top_k": -1}`, "invalid_top_k"},
		{"top_k over cap", `{"query": "q", "top_k": 51}`, "invalid_top_k"},
		{"threshold below range", `{"query": "q", "similarity_threshold": -0.1}`, "invalid_threshold"},
		{"threshold above range", `{"query": "q", "similarity_threshold": 1.5}`, "invalid_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(tt.body))
			rec := ts.do(t, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, rec))
		})
	}
}

func TestChat_Grounded(t *testing.T) {
	ts := newTestServer(t)
	ts.retriever.matches = []document.Match{
		{Filename: "guide.pdf", Content: "refunds take 5 days", Similarity: 0.87},
	}
	ts.answerer.resp = &answer.Response{
		Answer:      "Refunds take 5 days.",
		Mode:        rag.ModeGrounded,
		Sources:     []answer.Source{{Filename: "guide.pdf", Similarity: 0.87}},
		Confidence:  87,
		ContextUsed: true,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message": "how long do refunds take?", "user_id": "alice"}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body answer.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, rag.ModeGrounded, body.Mode)
	assert.Equal(t, 87, body.Confidence)

	// The handler fed the policy decision to the answerer.
	assert.Equal(t, rag.ModeGrounded, ts.answerer.gotDecision.Mode)
	assert.Len(t, ts.answerer.gotDecision.Relevant, 1)
}

func TestChat_GeneralWhenNothingRelevant(t *testing.T) {
	ts := newTestServer(t)
	ts.retriever.matches = []document.Match{
		{Filename: "unrelated.txt", Similarity: 0.15},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message": "what is kubernetes?"}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, rag.ModeGeneral, ts.answerer.gotDecision.Mode)
	assert.Empty(t, ts.answerer.gotDecision.Relevant)
}

func TestChat_BackendUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.answerer.healthErr = answer.ErrUnavailable

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message": "hello"}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "backend_unavailable", decodeError(t, rec))
}

func TestChat_DegradedAnswerStill200(t *testing.T) {
	ts := newTestServer(t)
	ts.retriever.matches = []document.Match{
		{Filename: "guide.pdf", Content: "refunds take 5 days", Similarity: 0.87},
	}
	ts.answerer.resp = &answer.Response{
		Answer:     "I found relevant documents but encountered an error while generating the answer. Please try again.",
		Mode:       rag.ModeGrounded,
		Sources:    []answer.Source{{Filename: "guide.pdf", Similarity: 0.87}},
		Confidence: 0,
	}
	ts.answerer.err = errors.New("model crashed")

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message": "how long do refunds take?"}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body answer.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Confidence)
	assert.Len(t, body.Sources, 1)
}

func TestChat_Validation(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message": ""}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_message", decodeError(t, rec))

	req = httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message": "hi", "similarity_threshold": 2}`))
	rec = ts.do(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_threshold", decodeError(t, rec))
}

func TestChat_PerRequestOverrides(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"message": "how long do refunds take?", "top_k": 3, "similarity_threshold": 0.6}`))
	rec := ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 3, ts.retriever.gotParams.TopK)
	assert.Equal(t, 0.6, ts.retriever.gotParams.Floor)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/chat/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ts.answerer.healthErr = answer.ErrUnavailable
	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/chat/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewServer_RequiredDeps(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}
