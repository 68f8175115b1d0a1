// Package app assembles the application from its components.
//
// App is the container created by Setup: it owns the database pool, the
// Genkit instance, and the fully wired ingestion and retrieval pipeline.
// Call Close to release resources in reverse initialization order.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsmith-ai/docsmith/internal/answer"
	"github.com/docsmith-ai/docsmith/internal/config"
	"github.com/docsmith-ai/docsmith/internal/document"
	"github.com/docsmith-ai/docsmith/internal/ingest"
	"github.com/docsmith-ai/docsmith/internal/rag"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	// Pipeline components
	Store     *document.Store
	Ingestor  *ingest.Ingestor
	Engine    *rag.Engine
	Generator *answer.Generator
}

// Close releases all resources held by the App.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
