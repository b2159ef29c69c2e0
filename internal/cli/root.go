package cli

import (
	"context"

	"resumetailor/internal/config"
	"resumetailor/internal/errors"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumetailor",
	Short: "A conversational assistant that tailors resumes to job postings",
	Long: `Resume Tailor walks you through tailoring a resume to a job posting:
paste your resume, paste the posting, review the tailored version, optionally
download it as a Word document and keep refining it with edit instructions.

Use "chat" for an interactive session, "tailor" for a one-shot run over two
files, or "serve" to expose conversations over HTTP.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(tailorCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
