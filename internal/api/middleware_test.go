package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docsmith-ai/docsmith/internal/log"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after panic", rec.Code)
	}
}

func TestRecoveryMiddleware_PassThrough(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want handler status preserved", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var inCtx string
	handler := requestIDMiddleware()(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			inCtx = requestIDFromContext(r.Context())
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	header := rec.Header().Get("X-Request-ID")
	if header == "" {
		t.Fatal("X-Request-ID header not set")
	}
	if inCtx != header {
		t.Errorf("context request id %q != header %q", inCtx, header)
	}
}
