package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docsmith-ai/docsmith/internal/app"
	"github.com/docsmith-ai/docsmith/internal/config"
	"github.com/docsmith-ai/docsmith/internal/log"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-run indexing for documents that never completed",
	Long: `Reindex sweeps documents whose indexing failed or was deferred,
discards any partial chunks, and runs the extraction and embedding
pipeline again. Prints the number of documents recovered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReindex()
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: logLevel()})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	recovered, err := a.Ingestor.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindexing: %w", err)
	}

	fmt.Printf("Recovered %d document(s)\n", recovered)
	return nil
}
