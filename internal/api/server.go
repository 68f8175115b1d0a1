// Package api exposes the document ingestion, search, and chat endpoints
// over HTTP with JSON bodies.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docsmith-ai/docsmith/internal/answer"
	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/rag"
)

// DocumentStore is the persistence surface the handlers need.
// *document.Store satisfies it.
type DocumentStore interface {
	Create(ctx context.Context, doc *document.Document) error
	List(ctx context.Context, vis document.Visibility) ([]document.Document, error)
	Delete(ctx context.Context, filename, userID, role string, vis document.Visibility) (*document.Document, error)
}

// Ingestor runs the indexing pipeline. *ingest.Ingestor satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, doc *document.Document) error
	Reindex(ctx context.Context) (int, error)
}

// Retriever finds chunks relevant to a query. *rag.Engine satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, vis document.Visibility, opts ...rag.Option) ([]document.Match, error)
}

// Answerer generates answers and reports backend liveness.
// *answer.Generator satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string, decision rag.Decision) (*answer.Response, error)
	Health(ctx context.Context) error
}

// Pinger reports database connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig contains everything needed to build the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	Store     DocumentStore // Required
	Ingestor  Ingestor      // Required
	Retriever Retriever     // Required
	Answerer  Answerer      // Required
	Policy    rag.Policy

	Pool           Pinger // Optional: nil disables DB check in /ready
	UploadDir      string // Required
	MaxUploadBytes int64  // 0 = default 50 MiB
	TrustProxy     bool   // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst      int    // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

const defaultMaxUploadBytes = 50 << 20

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("document store is required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if cfg.UploadDir == "" {
		return nil, errors.New("upload directory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	dh := &documentHandler{
		store:     cfg.Store,
		ingestor:  cfg.Ingestor,
		uploadDir: cfg.UploadDir,
		maxUpload: maxUpload,
		logger:    logger,
	}
	sh := &searchHandler{retriever: cfg.Retriever, logger: logger}
	ch := &chatHandler{
		retriever: cfg.Retriever,
		answerer:  cfg.Answerer,
		policy:    cfg.Policy,
		logger:    logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/documents/upload", dh.upload)
	mux.HandleFunc("GET /api/documents", dh.list)
	mux.HandleFunc("DELETE /api/documents/{filename}", dh.delete)
	mux.HandleFunc("POST /api/documents/reindex", dh.reindex)

	mux.HandleFunc("POST /api/search", sh.search)

	mux.HandleFunc("POST /api/chat", ch.send)
	mux.HandleFunc("GET /api/chat/health", ch.health)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> RateLimit -> Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes stay outside the middleware stack so rate limiting and
	// request logging never interfere with orchestrator checks.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
