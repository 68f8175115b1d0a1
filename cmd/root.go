// Package cmd contains the docsmith CLI commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docsmith",
	Short: "Docsmith - document question answering over your own files",
	Long: `Docsmith indexes uploaded documents into PostgreSQL with pgvector and
answers questions grounded in their content.

Run 'docsmith serve' to start the HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logLevel returns debug level when the DEBUG environment variable is set.
func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
